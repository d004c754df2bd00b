package reminder

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/email"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

type Service struct {
	sms     SMSGateway
	email   email.Service
	logs    repository.ReminderLogRepository
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(sms SMSGateway, emailSvc email.Service, logs repository.ReminderLogRepository, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if m == nil {
		m = metrics.New("hmis")
	}
	return &Service{
		sms:     sms,
		email:   emailSvc,
		logs:    logs,
		metrics: m,
		logger:  logger.With().Str("component", "reminder").Logger(),
	}
}

// Send delivers one reminder. A delivery failure is reported in the result,
// not as an error; only malformed requests return an error. Every delivery
// attempt is written to the reminder log.
func (s *Service) Send(ctx context.Context, req *model.ReminderRequest) (*model.ReminderResult, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return nil, apperrors.BadRequest("recipient is required", nil)
	}
	subject, body, err := Compose(req.MessageType, req.AppointmentDetails)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	var messageID string
	switch req.Channel {
	case model.ReminderChannelSMS:
		messageID, err = s.sms.Send(ctx, recipient, body)
	case model.ReminderChannelEmail:
		messageID, err = s.email.SendCustom(ctx, recipient, subject, body)
	default:
		return nil, apperrors.BadRequest("channel must be sms or email", nil)
	}

	result := &model.ReminderResult{Success: err == nil, MessageID: messageID}
	entry := &model.ReminderLog{
		ID:            uuid.New(),
		Channel:       req.Channel,
		Recipient:     recipient,
		AppointmentID: req.AppointmentID,
		MessageType:   req.MessageType,
		Body:          body,
		Success:       result.Success,
		CreatedAt:     time.Now().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
		entry.Error = &result.Error
		s.metrics.RemindersSent.WithLabelValues(string(req.Channel), "failed").Inc()
		s.logger.Warn().Err(err).Str("channel", string(req.Channel)).Str("message_type", req.MessageType).Msg("reminder delivery failed")
	} else {
		if messageID != "" {
			entry.MessageID = &messageID
		}
		s.metrics.RemindersSent.WithLabelValues(string(req.Channel), "sent").Inc()
	}

	if logErr := s.logs.Create(ctx, entry); logErr != nil {
		s.logger.Error().Err(logErr).Str("reminder_id", entry.ID.String()).Msg("failed to write reminder log")
	}
	return result, nil
}
