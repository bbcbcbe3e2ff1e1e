// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu           sync.Mutex
	slots        Slots
	now          func() time.Time
	symptoms     []SymptomRecord
	appointments []Appointment
	closed       bool
}

// NewMemoryStore creates an empty store. Nil slots select DefaultSlots and a
// nil clock selects time.Now.
func NewMemoryStore(slots Slots, now func() time.Time) *MemoryStore {
	if slots == nil {
		slots = DefaultSlots()
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{slots: slots, now: now}
}

// AddSymptoms implements Store.
func (m *MemoryStore) AddSymptoms(ctx context.Context, rec SymptomRecord) (SymptomRecord, error) {
	if err := ctx.Err(); err != nil {
		return SymptomRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return SymptomRecord{}, ErrClosed
	}

	rec.ID = int64(len(m.symptoms) + 1)
	rec.Ref = uuid.NewString()
	rec.CreatedAt = m.now()
	rec.Symptoms = append([]string(nil), rec.Symptoms...)
	m.symptoms = append(m.symptoms, rec)
	return rec, nil
}

// BookAppointment implements Store.
func (m *MemoryStore) BookAppointment(ctx context.Context, req AppointmentRequest) (Appointment, error) {
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Appointment{}, ErrClosed
	}

	booked := 0
	for _, a := range m.appointments {
		if a.Type == req.Type && a.Date == req.Date {
			booked++
		}
	}
	slot, err := m.slots.next(req.Type, booked)
	if err != nil {
		return Appointment{}, err
	}

	appt := Appointment{
		ID:              int64(len(m.appointments) + 1),
		Ref:             uuid.NewString(),
		PatientID:       req.PatientID,
		Type:            req.Type,
		Date:            req.Date,
		Time:            slot,
		SymptomRecordID: req.SymptomRecordID,
		CreatedAt:       m.now(),
	}
	m.appointments = append(m.appointments, appt)
	return appt, nil
}

// MedicalHistory implements Store.
func (m *MemoryStore) MedicalHistory(ctx context.Context, patientID string) (MedicalHistory, error) {
	if err := ctx.Err(); err != nil {
		return MedicalHistory{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return MedicalHistory{}, ErrClosed
	}

	h := BaselineHistory(patientID)
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			h.RecentVisits = append(h.RecentVisits, visitLine(a))
		}
	}
	for _, r := range m.symptoms {
		if r.PatientID == patientID {
			h.RecentVisits = append(h.RecentVisits, symptomLine(r))
		}
	}
	return h, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
