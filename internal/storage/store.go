// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidAppointmentType is returned for a type with no configured slots.
	ErrInvalidAppointmentType = errors.New("invalid appointment type")

	// ErrNoSlots is returned when every slot of the day is taken.
	ErrNoSlots = errors.New("no available slots")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// SymptomRecord is one recorded symptom report.
type SymptomRecord struct {
	ID        int64     `json:"record_id"`
	Ref       string    `json:"ref"`
	PatientID string    `json:"patient_id,omitempty"`
	Symptoms  []string  `json:"symptoms"`
	Duration  string    `json:"duration"`
	Severity  string    `json:"severity"`
	Urgent    bool      `json:"urgent"`
	CreatedAt time.Time `json:"created_at"`
}

// AppointmentRequest asks for the next free slot of a type on a date.
type AppointmentRequest struct {
	PatientID       string
	Type            string
	Date            string // YYYY-MM-DD
	SymptomRecordID int64
}

// Appointment is a confirmed booking.
type Appointment struct {
	ID              int64     `json:"appointment_id"`
	Ref             string    `json:"ref"`
	PatientID       string    `json:"patient_id,omitempty"`
	Type            string    `json:"type"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	SymptomRecordID int64     `json:"symptoms_record_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// MedicalHistory is the summary returned by get_medical_history.
type MedicalHistory struct {
	PatientID          string   `json:"patient_id"`
	RecentVisits       []string `json:"recent_visits"`
	OngoingConditions  []string `json:"ongoing_conditions"`
	Allergies          []string `json:"allergies"`
	CurrentMedications []string `json:"current_medications"`
}

// BaselineHistory is the chart every patient starts with until a real
// records system is connected.
func BaselineHistory(patientID string) MedicalHistory {
	return MedicalHistory{
		PatientID:          patientID,
		RecentVisits:       []string{"2024-01-15: Regular checkup", "2023-12-01: Flu symptoms"},
		OngoingConditions:  []string{"Mild hypertension"},
		Allergies:          []string{"Penicillin"},
		CurrentMedications: []string{"Lisinopril 10mg daily"},
	}
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the append-only triage record store.
type Store interface {
	// AddSymptoms appends a symptom record and returns it with ID, Ref and
	// CreatedAt filled in.
	AddSymptoms(ctx context.Context, rec SymptomRecord) (SymptomRecord, error)

	// BookAppointment appends an appointment in the next free slot.
	BookAppointment(ctx context.Context, req AppointmentRequest) (Appointment, error)

	// MedicalHistory returns the baseline chart plus everything recorded
	// for the patient.
	MedicalHistory(ctx context.Context, patientID string) (MedicalHistory, error)

	// Close releases resources.
	Close() error
}

// Slots maps an appointment type to its daily slot times.
type Slots map[string][]string

// DefaultSlots returns the clinic's standard daily schedule.
func DefaultSlots() Slots {
	return Slots{
		"virtual":    {"09:00", "10:00", "14:00", "15:00"},
		"in-person":  {"11:00", "13:00", "16:00"},
		"specialist": {"10:30", "14:30"},
	}
}

// Types returns the configured appointment types, sorted.
func (s Slots) Types() []string {
	types := make([]string, 0, len(s))
	for t := range s {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// next picks the slot after the booked ones.
func (s Slots) next(apptType string, booked int) (string, error) {
	times, ok := s[apptType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAppointmentType, apptType)
	}
	if booked >= len(times) {
		return "", fmt.Errorf("%w for %s", ErrNoSlots, apptType)
	}
	return times[booked], nil
}

// Options selects and configures a Store.
type Options struct {
	Driver string // "memory" or "sqlite"
	Path   string // sqlite database file
	Slots  Slots
	Now    func() time.Time
}

// Open builds the store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(opts.Slots, opts.Now), nil
	case "sqlite":
		return NewSQLiteStore(ctx, opts.Path, opts.Slots, opts.Now)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func visitLine(a Appointment) string {
	return fmt.Sprintf("%s: %s appointment at %s", a.Date, a.Type, a.Time)
}

func symptomLine(r SymptomRecord) string {
	return fmt.Sprintf("%s: Reported %v (%s)", r.CreatedAt.Format("2006-01-02"), r.Symptoms, r.Severity)
}
