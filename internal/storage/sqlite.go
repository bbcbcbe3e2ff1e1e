// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	slots Slots
	now   func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string, slots Slots, now func() time.Time) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store needs a path")
	}
	if slots == nil {
		slots = DefaultSlots()
	}
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; booking relies on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, slots: slots, now: now}, nil
}

// AddSymptoms implements Store.
func (s *SQLiteStore) AddSymptoms(ctx context.Context, rec SymptomRecord) (SymptomRecord, error) {
	symptoms, err := json.Marshal(rec.Symptoms)
	if err != nil {
		return SymptomRecord{}, fmt.Errorf("encode symptoms: %w", err)
	}

	rec.Ref = uuid.NewString()
	rec.CreatedAt = s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO symptom_records (ref, patient_id, symptoms, duration, severity, urgent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Ref, rec.PatientID, string(symptoms), rec.Duration, rec.Severity, rec.Urgent,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return SymptomRecord{}, fmt.Errorf("insert symptom record: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return SymptomRecord{}, fmt.Errorf("symptom record id: %w", err)
	}
	return rec, nil
}

// BookAppointment implements Store.
func (s *SQLiteStore) BookAppointment(ctx context.Context, req AppointmentRequest) (Appointment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Appointment{}, fmt.Errorf("begin booking: %w", err)
	}
	defer tx.Rollback()

	var booked int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE type = ? AND date = ?`,
		req.Type, req.Date).Scan(&booked)
	if err != nil {
		return Appointment{}, fmt.Errorf("count appointments: %w", err)
	}

	slot, err := s.slots.next(req.Type, booked)
	if err != nil {
		return Appointment{}, err
	}

	appt := Appointment{
		Ref:             uuid.NewString(),
		PatientID:       req.PatientID,
		Type:            req.Type,
		Date:            req.Date,
		Time:            slot,
		SymptomRecordID: req.SymptomRecordID,
		CreatedAt:       s.now().UTC(),
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO appointments (ref, patient_id, type, date, slot, symptom_record_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		appt.Ref, appt.PatientID, appt.Type, appt.Date, appt.Time, appt.SymptomRecordID,
		appt.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	if appt.ID, err = res.LastInsertId(); err != nil {
		return Appointment{}, fmt.Errorf("appointment id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Appointment{}, fmt.Errorf("commit booking: %w", err)
	}
	return appt, nil
}

// MedicalHistory implements Store.
func (s *SQLiteStore) MedicalHistory(ctx context.Context, patientID string) (MedicalHistory, error) {
	h := BaselineHistory(patientID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, date, slot FROM appointments WHERE patient_id = ? ORDER BY id`, patientID)
	if err != nil {
		return MedicalHistory{}, fmt.Errorf("query appointments: %w", err)
	}
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.Type, &a.Date, &a.Time); err != nil {
			rows.Close()
			return MedicalHistory{}, fmt.Errorf("scan appointment: %w", err)
		}
		h.RecentVisits = append(h.RecentVisits, visitLine(a))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return MedicalHistory{}, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT symptoms, severity, created_at FROM symptom_records WHERE patient_id = ? ORDER BY id`, patientID)
	if err != nil {
		return MedicalHistory{}, fmt.Errorf("query symptom records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r         SymptomRecord
			symptoms  string
			createdAt string
		)
		if err := rows.Scan(&symptoms, &r.Severity, &createdAt); err != nil {
			return MedicalHistory{}, fmt.Errorf("scan symptom record: %w", err)
		}
		if err := json.Unmarshal([]byte(symptoms), &r.Symptoms); err != nil {
			return MedicalHistory{}, fmt.Errorf("decode symptoms: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return MedicalHistory{}, fmt.Errorf("decode created_at: %w", err)
		}
		h.RecentVisits = append(h.RecentVisits, symptomLine(r))
	}
	return h, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
