// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/triage-router/internal/storage"
)

// Tool names.
const (
	CheckSymptoms       = "check_symptoms"
	ScheduleAppointment = "schedule_appointment"
	GetMedicalHistory   = "get_medical_history"
	EstimateWaitTime    = "estimate_wait_time"
	SymptomIntake       = "symptom_intake"
)

// Urgency levels accepted by estimate_wait_time.
const (
	UrgencyRoutine   = "routine"
	UrgencyUrgent    = "urgent"
	UrgencyEmergency = "emergency"
)

// DateLayout is the only accepted appointment date format.
const DateLayout = "2006-01-02"

const (
	urgentCareMessage  = "URGENT: Please seek immediate medical attention or call emergency services."
	waitTimeNote       = "Wait times are estimates and may vary based on current patient volume"
	arrivalInstruction = "Please arrive 15 minutes before your appointment time."

	// DefaultIntakePrompt is the canned reply that starts a symptom intake.
	DefaultIntakePrompt = "I'll help assess your symptoms. Please describe your specific symptoms, how long you've had them, and their severity (mild/moderate/severe)."
)

var urgentSymptoms = []string{"chest pain", "difficulty breathing", "severe pain"}

// DefaultWaitTimes maps urgency levels to estimates.
func DefaultWaitTimes() map[string]string {
	return map[string]string{
		UrgencyRoutine:   "2-3 hours",
		UrgencyUrgent:    "30-45 minutes",
		UrgencyEmergency: "Immediate attention",
	}
}

// TriageOptions configures the triage tool set.
type TriageOptions struct {
	Store        storage.Store
	WaitTimes    map[string]string
	IntakePrompt string
	// AppointmentTypes limits schedule_appointment's enum. Empty means the
	// standard three.
	AppointmentTypes []string
}

// RegisterTriage adds the triage tools to r.
func RegisterTriage(r *Registry, opts TriageOptions) {
	if opts.WaitTimes == nil {
		opts.WaitTimes = DefaultWaitTimes()
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore(nil, nil)
	}
	if opts.IntakePrompt == "" {
		opts.IntakePrompt = DefaultIntakePrompt
	}
	if len(opts.AppointmentTypes) == 0 {
		opts.AppointmentTypes = []string{"virtual", "in-person", "specialist"}
	}
	t := &triage{opts: opts}

	r.Register(&Tool{
		Name:        CheckSymptoms,
		Description: "Record the patient's symptoms and flag cases that need immediate care.",
		Schema: Schema{Parameters: []Parameter{
			{Name: "symptoms", Type: "array", Items: "string", Required: true, Description: "List of symptoms the patient reports"},
			{Name: "duration", Type: "string", Required: true, Description: "How long the symptoms have lasted"},
			{Name: "severity", Type: "string", Required: true, Description: "Overall severity", Enum: []string{"mild", "moderate", "severe"}},
			{Name: "patient_id", Type: "string", Description: "Patient identifier, if known"},
		}},
		Executor: ExecutorFunc(t.checkSymptoms),
	})

	r.Register(&Tool{
		Name:        ScheduleAppointment,
		Description: "Book the next available appointment slot on a date.",
		Schema: Schema{Parameters: []Parameter{
			{Name: "appointment_type", Type: "string", Required: true, Description: "Kind of appointment", Enum: opts.AppointmentTypes},
			{Name: "preferred_date", Type: "string", Required: true, Description: "Date in YYYY-MM-DD format"},
			{Name: "symptoms_record_id", Type: "number", Description: "Record returned by check_symptoms"},
			{Name: "patient_id", Type: "string", Description: "Patient identifier, if known"},
		}},
		Executor: ExecutorFunc(t.scheduleAppointment),
	})

	r.Register(&Tool{
		Name:        GetMedicalHistory,
		Description: "Summarize a patient's visits, conditions, allergies and medications.",
		Schema: Schema{Parameters: []Parameter{
			{Name: "patient_id", Type: "string", Required: true, Description: "Patient identifier"},
		}},
		Executor: ExecutorFunc(t.medicalHistory),
	})

	r.Register(&Tool{
		Name:        EstimateWaitTime,
		Description: "Estimate the current wait for an urgency level.",
		Schema: Schema{Parameters: []Parameter{
			{Name: "urgency_level", Type: "string", Required: true, Description: "How urgent the visit is", Enum: []string{UrgencyRoutine, UrgencyUrgent, UrgencyEmergency}},
		}},
		Executor: ExecutorFunc(t.waitTime),
	})

	r.Register(&Tool{
		Name:        SymptomIntake,
		Description: "Ask the patient to describe symptoms, duration and severity.",
		Executor:    ExecutorFunc(t.intake),
	})
}

type triage struct {
	opts TriageOptions
}

// IsUrgent reports whether symptoms need immediate care.
func IsUrgent(symptoms []string, severity string) bool {
	if strings.EqualFold(strings.TrimSpace(severity), "severe") {
		return true
	}
	for _, s := range symptoms {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, u := range urgentSymptoms {
			if s == u {
				return true
			}
		}
	}
	return false
}

func (t *triage) checkSymptoms(ctx context.Context, params map[string]any) (Result, error) {
	symptoms := stringList(params["symptoms"])
	if len(symptoms) == 0 {
		return Result{}, &ValidationError{Param: "symptoms", Message: "at least one symptom is required"}
	}
	severity, _ := params["severity"].(string)
	duration, _ := params["duration"].(string)
	patientID, _ := params["patient_id"].(string)
	urgent := IsUrgent(symptoms, severity)

	rec, err := t.store().AddSymptoms(ctx, storage.SymptomRecord{
		PatientID: patientID,
		Symptoms:  symptoms,
		Duration:  duration,
		Severity:  severity,
		Urgent:    urgent,
	})
	if err != nil {
		return Result{}, fmt.Errorf("record symptoms: %w", err)
	}

	if urgent {
		return Result{Output: urgentCareMessage}, nil
	}
	return jsonResult(map[string]any{
		"assessment":     "Symptoms recorded and assessed",
		"record_id":      rec.ID,
		"recommendation": "Based on initial assessment, scheduling a consultation is recommended.",
	})
}

func (t *triage) scheduleAppointment(ctx context.Context, params map[string]any) (Result, error) {
	apptType, _ := params["appointment_type"].(string)
	date, _ := params["preferred_date"].(string)
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Result{}, &ValidationError{Param: "preferred_date", Message: "invalid date format, use YYYY-MM-DD"}
	}
	patientID, _ := params["patient_id"].(string)

	appt, err := t.store().BookAppointment(ctx, storage.AppointmentRequest{
		PatientID:       patientID,
		Type:            apptType,
		Date:            date,
		SymptomRecordID: intParam(params["symptoms_record_id"]),
	})
	if errors.Is(err, storage.ErrInvalidAppointmentType) {
		return Result{}, &ValidationError{Param: "appointment_type", Message: err.Error()}
	}
	if err != nil {
		return Result{}, fmt.Errorf("error scheduling appointment: %w", err)
	}

	details := map[string]any{
		"type":           appt.Type,
		"date":           appt.Date,
		"time":           appt.Time,
		"appointment_id": appt.Ref,
	}
	if appt.SymptomRecordID != 0 {
		details["symptoms_record_id"] = appt.SymptomRecordID
	}
	return jsonResult(map[string]any{
		"status":              "confirmed",
		"appointment_details": details,
		"instructions":        arrivalInstruction,
	})
}

func (t *triage) medicalHistory(ctx context.Context, params map[string]any) (Result, error) {
	patientID, _ := params["patient_id"].(string)
	h, err := t.store().MedicalHistory(ctx, patientID)
	if err != nil {
		return Result{}, fmt.Errorf("load medical history: %w", err)
	}
	return jsonResult(h)
}

func (t *triage) waitTime(_ context.Context, params map[string]any) (Result, error) {
	level, _ := params["urgency_level"].(string)
	estimate, ok := t.opts.WaitTimes[level]
	if !ok {
		return Result{}, &ValidationError{Param: "urgency_level", Message: fmt.Sprintf("no estimate for %q", level)}
	}
	return jsonResult(map[string]any{
		"urgency":        level,
		"estimated_wait": estimate,
		"note":           waitTimeNote,
	})
}

func (t *triage) intake(context.Context, map[string]any) (Result, error) {
	return Result{Output: t.opts.IntakePrompt}, nil
}

func (t *triage) store() storage.Store {
	return t.opts.Store
}

func jsonResult(v any) (Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode result: %w", err)
	}
	return Result{Output: string(data)}, nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intParam(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
