// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Schema creates the triage tables. Rows are only ever inserted.
const Schema = `
CREATE TABLE IF NOT EXISTS symptom_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ref         TEXT NOT NULL UNIQUE,
	patient_id  TEXT NOT NULL DEFAULT '',
	symptoms    TEXT NOT NULL,
	duration    TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT '',
	urgent      INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symptom_records_patient ON symptom_records(patient_id);

CREATE TABLE IF NOT EXISTS appointments (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	ref                TEXT NOT NULL UNIQUE,
	patient_id         TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL,
	date               TEXT NOT NULL,
	slot               TEXT NOT NULL,
	symptom_record_id  INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	UNIQUE(type, date, slot)
);

CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id);
`
