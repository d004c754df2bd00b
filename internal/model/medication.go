package model

import (
	"time"

	"github.com/google/uuid"
)

// DoseStatus is the lifecycle state of a scheduled dose.
type DoseStatus string

const (
	DoseStatusPending      DoseStatus = "pending"
	DoseStatusDue          DoseStatus = "due"
	DoseStatusAdministered DoseStatus = "administered"
	DoseStatusSkipped      DoseStatus = "skipped"
	DoseStatusCancelled    DoseStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s DoseStatus) Terminal() bool {
	switch s {
	case DoseStatusAdministered, DoseStatusSkipped, DoseStatusCancelled:
		return true
	}
	return false
}

// OpenDoseStatuses are the states a dose can be administered or skipped from.
var OpenDoseStatuses = []DoseStatus{DoseStatusPending, DoseStatusDue}

// PrescriptionItem is one medication line of a prescription.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	MedicationName string    `db:"medication_name" json:"medication_name"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Frequency      string    `db:"frequency" json:"frequency"`
	Route          string    `db:"route" json:"route"`
	DurationDays   int       `db:"duration_days" json:"duration_days"`
	Instructions   string    `db:"instructions" json:"instructions,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ScheduledDose is a single expected administration event.
type ScheduledDose struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PrescriptionID     uuid.UUID  `db:"prescription_id" json:"prescription_id"`
	PrescriptionItemID uuid.UUID  `db:"prescription_item_id" json:"prescription_item_id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	ScheduledTime      time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Dosage             string     `db:"dosage" json:"dosage"`
	Frequency          string     `db:"frequency" json:"frequency"`
	Route              string     `db:"route" json:"route"`
	Status             DoseStatus `db:"status" json:"status"`
	AdministeredAt     *time.Time `db:"administered_at" json:"administered_at,omitempty"`
	AdministeredBy     *uuid.UUID `db:"administered_by" json:"administered_by,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// DoseWindow is the read-time temporal bucket of an open dose.
type DoseWindow string

const (
	DoseWindowOverdue DoseWindow = "overdue"
	DoseWindowDueSoon DoseWindow = "due_soon"
	DoseWindowLater   DoseWindow = "later"
)

// DueDose decorates a scheduled dose with its window at query time.
type DueDose struct {
	ScheduledDose
	Window DoseWindow `json:"window"`
}

// AdministrationStatus is the outcome recorded in the administration log.
type AdministrationStatus string

const (
	AdministrationStatusAdministered AdministrationStatus = "administered"
	AdministrationStatusSkipped      AdministrationStatus = "skipped"
	AdministrationStatusRefused      AdministrationStatus = "refused"
	AdministrationStatusDelayed      AdministrationStatus = "delayed"
)

// MedicationAdministrationLog is an append-only audit record.
type MedicationAdministrationLog struct {
	ID                 uuid.UUID            `db:"id" json:"id"`
	PrescriptionItemID uuid.UUID            `db:"prescription_item_id" json:"prescription_item_id"`
	ScheduledDoseID    *uuid.UUID           `db:"scheduled_dose_id" json:"scheduled_dose_id,omitempty"`
	PatientID          uuid.UUID            `db:"patient_id" json:"patient_id"`
	AdministeredBy     uuid.UUID            `db:"administered_by" json:"administered_by"`
	AdministeredAt     time.Time            `db:"administered_at" json:"administered_at"`
	DosageGiven        string               `db:"dosage_given" json:"dosage_given"`
	Route              string               `db:"route" json:"route"`
	Notes              *string              `db:"notes" json:"notes,omitempty"`
	Status             AdministrationStatus `db:"status" json:"status"`
	ReasonNotGiven     *string              `db:"reason_not_given" json:"reason_not_given,omitempty"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
}

// AdministrationRecord is the input of an administration event.
type AdministrationRecord struct {
	DoseID         uuid.UUID
	AdministeredBy uuid.UUID
	AdministeredAt time.Time
	DosageGiven    string
	Route          string
	Notes          *string
}

// DoseFilters narrows dose queries. From is exclusive, To is inclusive.
type DoseFilters struct {
	PatientID *uuid.UUID
	Statuses  []DoseStatus
	From      *time.Time
	To        *time.Time
}

// AdministrationLogFilters narrows audit log queries. The id filters are not
// form-bound; handlers parse them from the query.
type AdministrationLogFilters struct {
	PatientID      *uuid.UUID `form:"-"`
	AdministeredBy *uuid.UUID `form:"-"`
	From           *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To             *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Pagination
}
