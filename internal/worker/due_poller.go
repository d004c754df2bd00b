package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/pkg/logger"
	"github.com/jwalitptl/hmis-api/pkg/messaging"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

// DuePoller moves pending doses whose time has come to due and announces each
// one on the doses.due channel. Listeners see a dose at most one interval late.
type DuePoller struct {
	doses    repository.DoseRepository
	broker   messaging.Broker
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewDuePoller(doses repository.DoseRepository, broker messaging.Broker, interval time.Duration, logger *logger.Logger, m *metrics.Metrics) *DuePoller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DuePoller{
		doses:    doses,
		broker:   broker,
		interval: interval,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *DuePoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting due dose poller", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down due dose poller")
			return
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				p.logger.Error(err, "Failed to poll due doses")
			}
		}
	}
}

// Poll runs one pass and returns the number of doses that became due.
func (p *DuePoller) Poll(ctx context.Context) (int, error) {
	asOf := p.now()

	newlyDue, err := p.doses.MarkDue(ctx, asOf)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("mark_due", "error").Inc()
		return 0, fmt.Errorf("failed to mark due doses: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("mark_due", "success").Inc()

	for _, dose := range newlyDue {
		err := p.broker.Publish(ctx, messaging.ChannelDosesDue, messaging.Message{
			Type:    model.EventDoseDue,
			Payload: dose,
		})
		if err != nil {
			// the dose stays due and is still listed; only the push is lost
			p.logger.Error(err, "Failed to publish due dose", "dose_id", dose.ID.String())
		}
	}

	open, err := p.doses.List(ctx, &model.DoseFilters{Statuses: model.OpenDoseStatuses, To: &asOf})
	if err != nil {
		return len(newlyDue), fmt.Errorf("failed to count due doses: %w", err)
	}
	p.metrics.DueDoses.Set(float64(len(open)))

	if len(newlyDue) > 0 {
		p.logger.Info("Doses became due", "count", len(newlyDue))
	}
	return len(newlyDue), nil
}
