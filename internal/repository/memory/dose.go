package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type doseRepo Store

func (r *doseRepo) InsertBatch(ctx context.Context, doses []*model.ScheduledDose) (int, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	inserted := 0
	for _, d := range doses {
		key := doseKey{itemID: d.PrescriptionItemID, at: d.ScheduledTime.UnixNano()}
		if _, exists := r.doseIndex[key]; exists {
			continue
		}
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		cp := *d
		r.doses[d.ID] = &cp
		r.doseIndex[key] = d.ID
		inserted++
	}
	return inserted, nil
}

func (r *doseRepo) Get(ctx context.Context, id uuid.UUID) (*model.ScheduledDose, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, ok := r.doses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *doseRepo) List(ctx context.Context, filters *model.DoseFilters) ([]*model.ScheduledDose, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.ScheduledDose
	for _, d := range r.doses {
		if filters != nil && !matchDose(d, filters) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out, nil
}

func matchDose(d *model.ScheduledDose, f *model.DoseFilters) bool {
	if f.PatientID != nil && d.PatientID != *f.PatientID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if d.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && !d.ScheduledTime.After(*f.From) {
		return false
	}
	if f.To != nil && d.ScheduledTime.After(*f.To) {
		return false
	}
	return true
}

func (r *doseRepo) open(id uuid.UUID) (*model.ScheduledDose, error) {
	d, ok := r.doses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if d.Status != model.DoseStatusPending && d.Status != model.DoseStatusDue {
		return nil, repository.ErrDoseNotOpen
	}
	return d, nil
}

func (r *doseRepo) RecordAdministration(ctx context.Context, rec *model.AdministrationRecord) (*model.ScheduledDose, *model.MedicationAdministrationLog, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	d, err := r.open(rec.DoseID)
	if err != nil {
		return nil, nil, err
	}

	at := rec.AdministeredAt
	by := rec.AdministeredBy
	d.Status = model.DoseStatusAdministered
	d.AdministeredAt = &at
	d.AdministeredBy = &by
	d.Notes = rec.Notes
	d.UpdatedAt = at

	doseID := d.ID
	entry := &model.MedicationAdministrationLog{
		ID:                 uuid.New(),
		PrescriptionItemID: d.PrescriptionItemID,
		ScheduledDoseID:    &doseID,
		PatientID:          d.PatientID,
		AdministeredBy:     by,
		AdministeredAt:     at,
		DosageGiven:        rec.DosageGiven,
		Route:              rec.Route,
		Notes:              rec.Notes,
		Status:             model.AdministrationStatusAdministered,
		CreatedAt:          at,
	}
	r.adminLog = append(r.adminLog, entry)

	doseCopy := *d
	entryCopy := *entry
	return &doseCopy, &entryCopy, nil
}

func (r *doseRepo) Skip(ctx context.Context, doseID uuid.UUID, reason string, at time.Time) (*model.ScheduledDose, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := r.open(doseID)
	if err != nil {
		return nil, err
	}

	notes := reason
	d.Status = model.DoseStatusSkipped
	d.Notes = &notes
	d.UpdatedAt = at

	cp := *d
	return &cp, nil
}

func (r *doseRepo) CancelOpen(ctx context.Context, itemID uuid.UUID, at time.Time) (int, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for _, d := range r.doses {
		if d.PrescriptionItemID != itemID || d.Status.Terminal() {
			continue
		}
		d.Status = model.DoseStatusCancelled
		d.UpdatedAt = at
		n++
	}
	return n, nil
}

func (r *doseRepo) MarkDue(ctx context.Context, asOf time.Time) ([]*model.ScheduledDose, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.ScheduledDose
	for _, d := range r.doses {
		if d.Status != model.DoseStatusPending || d.ScheduledTime.After(asOf) {
			continue
		}
		d.Status = model.DoseStatusDue
		d.UpdatedAt = asOf
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

// administration log

type adminLogRepo Store

func (r *adminLogRepo) List(ctx context.Context, filters *model.AdministrationLogFilters) ([]*model.MedicationAdministrationLog, error) {
	unlock, err := (*Store)(r).lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if filters == nil {
		filters = &model.AdministrationLogFilters{}
	}

	var out []*model.MedicationAdministrationLog
	for _, e := range r.adminLog {
		if filters.PatientID != nil && e.PatientID != *filters.PatientID {
			continue
		}
		if filters.AdministeredBy != nil && e.AdministeredBy != *filters.AdministeredBy {
			continue
		}
		if filters.From != nil && e.AdministeredAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && e.AdministeredAt.After(*filters.To) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AdministeredAt.After(out[j].AdministeredAt) })

	return page(out, filters.Offset(), filters.Limit()), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
