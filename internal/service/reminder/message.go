package reminder

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/hmis-api/internal/model"
)

func detail(details map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(details[key]); v != "" {
		return v
	}
	return fallback
}

// Compose renders the subject and body for a message type.
func Compose(messageType string, details map[string]string) (subject, body string, err error) {
	patient := detail(details, "patient_name", "Patient")
	date := detail(details, "date", "")
	at := detail(details, "time", "")
	doctor := detail(details, "doctor_name", "your doctor")

	switch messageType {
	case model.ReminderTypeAppointment:
		subject = "Appointment reminder"
		body = fmt.Sprintf("Dear %s, this is a reminder of your appointment with %s on %s at %s.", patient, doctor, date, at)
	case model.ReminderTypeConfirmation:
		subject = "Appointment confirmed"
		body = fmt.Sprintf("Dear %s, your appointment with %s on %s at %s is confirmed.", patient, doctor, date, at)
	case model.ReminderTypeCancellation:
		subject = "Appointment cancelled"
		body = fmt.Sprintf("Dear %s, your appointment with %s on %s at %s has been cancelled. Please contact us to reschedule.", patient, doctor, date, at)
	case model.ReminderTypeMedication:
		medication := detail(details, "medication", "your medication")
		dosage := detail(details, "dosage", "")
		subject = "Medication reminder"
		body = strings.TrimSpace(fmt.Sprintf("Dear %s, it is time to take %s %s", patient, medication, dosage)) + "."
	default:
		return "", "", fmt.Errorf("unknown message type %q", messageType)
	}
	return subject, body, nil
}
