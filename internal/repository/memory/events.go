package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
)

type auditRepo Store

func (r *auditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	cp := *log
	r.audit = append(r.audit, &cp)
	return nil
}

func (r *auditRepo) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, int64, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	if filters == nil {
		filters = &model.AuditFilters{}
	}

	var out []*model.AuditLog
	for _, a := range r.audit {
		if filters.UserID != nil && a.UserID != *filters.UserID {
			continue
		}
		if filters.EntityType != "" && a.EntityType != filters.EntityType {
			continue
		}
		if filters.Action != "" && a.Action != filters.Action {
			continue
		}
		if filters.From != nil && a.CreatedAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && a.CreatedAt.After(*filters.To) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return page(out, filters.Offset(), filters.Limit()), int64(len(out)), nil
}

type outboxRepo Store

func (r *outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	cp := *event
	r.outbox = append(r.outbox, &cp)
	return nil
}

func (r *outboxRepo) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now()
	var out []*model.OutboxEvent
	for _, e := range r.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		until := now.Add(lease)
		e.RetryAt = &until
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *outboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	for _, e := range r.outbox {
		if e.ID != id {
			continue
		}
		now := time.Now()
		e.Status = status
		e.ErrorMessage = errorMessage
		e.RetryAt = retryAt
		e.UpdatedAt = now
		if status == model.OutboxStatusRetry {
			e.RetryCount++
		}
		if status == model.OutboxStatusProcessed {
			e.ProcessedAt = &now
		}
		return nil
	}
	return nil
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	kept := r.outbox[:0]
	var deleted int64
	for _, e := range r.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.outbox = kept
	return deleted, nil
}

type reminderRepo Store

func (r *reminderRepo) Create(ctx context.Context, log *model.ReminderLog) error {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return err
	}
	defer unlock()

	cp := *log
	r.reminders = append(r.reminders, &cp)
	return nil
}
