package model

import (
	"time"

	"github.com/google/uuid"
)

// ReminderChannel is the delivery medium of a reminder.
type ReminderChannel string

const (
	ReminderChannelSMS   ReminderChannel = "sms"
	ReminderChannelEmail ReminderChannel = "email"
)

// Reminder message types.
const (
	ReminderTypeAppointment  = "appointment_reminder"
	ReminderTypeConfirmation = "appointment_confirmation"
	ReminderTypeCancellation = "appointment_cancellation"
	ReminderTypeMedication   = "medication_reminder"
)

// ReminderRequest is the input of a reminder delivery.
type ReminderRequest struct {
	Channel            ReminderChannel   `json:"channel" binding:"required,oneof=sms email"`
	Recipient          string            `json:"recipient" binding:"required"`
	AppointmentID      *uuid.UUID        `json:"appointment_id"`
	MessageType        string            `json:"message_type" binding:"required,oneof=appointment_reminder appointment_confirmation appointment_cancellation medication_reminder"`
	AppointmentDetails map[string]string `json:"appointment_details"`
}

// ReminderResult mirrors the delivery function response.
type ReminderResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReminderLog records every delivery attempt, successful or not.
type ReminderLog struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Channel       ReminderChannel `db:"channel" json:"channel"`
	Recipient     string          `db:"recipient" json:"recipient"`
	AppointmentID *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	MessageType   string          `db:"message_type" json:"message_type"`
	Body          string          `db:"body" json:"body"`
	Success       bool            `db:"success" json:"success"`
	MessageID     *string         `db:"message_id" json:"message_id,omitempty"`
	Error         *string         `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
