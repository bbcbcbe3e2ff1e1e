// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
}

// storeFactories runs each test against every implementation.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store {
			return NewMemoryStore(nil, fixedNow)
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "triage.db"), nil, fixedNow)
			require.NoError(t, err)
			return s
		},
	}
}

func TestAddSymptoms(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			defer store.Close()
			ctx := context.Background()

			first, err := store.AddSymptoms(ctx, SymptomRecord{
				PatientID: "p1",
				Symptoms:  []string{"cough", "fever"},
				Duration:  "2 days",
				Severity:  "mild",
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), first.ID)
			assert.NotEmpty(t, first.Ref)
			assert.True(t, first.CreatedAt.Equal(fixedNow()))

			second, err := store.AddSymptoms(ctx, SymptomRecord{Symptoms: []string{"headache"}})
			require.NoError(t, err)
			assert.Equal(t, int64(2), second.ID)
			assert.NotEqual(t, first.Ref, second.Ref)
		})
	}
}

func TestBookAppointmentAssignsSlotsInOrder(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			defer store.Close()
			ctx := context.Background()

			req := AppointmentRequest{Type: "specialist", Date: "2025-03-02"}

			a1, err := store.BookAppointment(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, "10:30", a1.Time)

			a2, err := store.BookAppointment(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, "14:30", a2.Time)

			_, err = store.BookAppointment(ctx, req)
			assert.ErrorIs(t, err, ErrNoSlots)

			// A different day has its own slots.
			a3, err := store.BookAppointment(ctx, AppointmentRequest{Type: "specialist", Date: "2025-03-03"})
			require.NoError(t, err)
			assert.Equal(t, "10:30", a3.Time)
		})
	}
}

func TestBookAppointmentRejectsUnknownType(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			defer store.Close()

			_, err := store.BookAppointment(context.Background(), AppointmentRequest{Type: "dental", Date: "2025-03-02"})
			assert.ErrorIs(t, err, ErrInvalidAppointmentType)
		})
	}
}

func TestMedicalHistoryIncludesRecords(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			defer store.Close()
			ctx := context.Background()

			_, err := store.BookAppointment(ctx, AppointmentRequest{PatientID: "p7", Type: "virtual", Date: "2025-03-02"})
			require.NoError(t, err)
			_, err = store.AddSymptoms(ctx, SymptomRecord{PatientID: "p7", Symptoms: []string{"rash"}, Severity: "mild"})
			require.NoError(t, err)
			_, err = store.AddSymptoms(ctx, SymptomRecord{PatientID: "other", Symptoms: []string{"cough"}})
			require.NoError(t, err)

			h, err := store.MedicalHistory(ctx, "p7")
			require.NoError(t, err)
			assert.Equal(t, "p7", h.PatientID)
			assert.Equal(t, []string{"Penicillin"}, h.Allergies)
			require.Len(t, h.RecentVisits, 4)
			assert.Equal(t, "2025-03-02: virtual appointment at 09:00", h.RecentVisits[2])
			assert.Equal(t, "2025-03-02: Reported [rash] (mild)", h.RecentVisits[3])
		})
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "triage.db")

	store, err := NewSQLiteStore(ctx, path, nil, fixedNow)
	require.NoError(t, err)
	_, err = store.BookAppointment(ctx, AppointmentRequest{Type: "in-person", Date: "2025-03-02"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path, nil, fixedNow)
	require.NoError(t, err)
	defer reopened.Close()

	appt, err := reopened.BookAppointment(ctx, AppointmentRequest{Type: "in-person", Date: "2025-03-02"})
	require.NoError(t, err)
	assert.Equal(t, "13:00", appt.Time)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore(nil, nil)
	require.NoError(t, store.Close())

	_, err := store.AddSymptoms(context.Background(), SymptomRecord{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "postgres"})
	assert.Error(t, err)
}
