// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists triage records written by the triage tools.
//
// The store is append-only: symptom records and appointments are inserted and
// never updated or deleted. Slot assignment is derived from how many
// appointments of the same type already exist for the day, so booking a slot
// is also just an insert.
//
// # Implementations
//
//   - MemoryStore: mutex-guarded slices, the default for one-shot CLI runs
//   - SQLiteStore: pure Go SQLite (modernc.org/sqlite) for durable records
//
// # Usage
//
//	store, err := storage.Open(ctx, storage.Options{Driver: "sqlite", Path: path, Slots: slots})
//	defer store.Close()
//
//	rec, err := store.AddSymptoms(ctx, storage.SymptomRecord{Symptoms: []string{"cough"}})
//	appt, err := store.BookAppointment(ctx, storage.AppointmentRequest{Type: "virtual", Date: "2025-03-02"})
package storage
