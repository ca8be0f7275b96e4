package dashboard

import (
	"context"
	"errors"
	"sync"

	"stresstest-server/entities"
	"stresstest-server/repositories"
	"stresstest-server/usecases"
)

// Mode says whether a form creates or edits a record.
type Mode int

const (
	ModeAdd Mode = iota
	ModeEdit
)

// Form stages one add or edit. The draft survives failed submissions and is
// cleared once the store accepts it.
type Form struct {
	d    *Dashboard
	mode Mode
	base entities.DeviceTest // edit target as it was when the form opened

	mu         sync.Mutex
	draft      entities.DeviceTestInput
	open       bool
	submitting bool
	lastErr    *entities.ValidationError
}

// OpenAdd opens an add form with the default draft.
func (d *Dashboard) OpenAdd() (*Form, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	return &Form{d: d, mode: ModeAdd, draft: entities.NewInput(), open: true}, nil
}

// OpenEdit opens an edit form pre-populated from the record in the view.
// When the record is gone no form opens: the view is refreshed from the
// store and ErrNotFound tells the caller there is nothing to edit.
func (d *Dashboard) OpenEdit(ctx context.Context, id string) (*Form, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	rec, ok := d.Record(id)
	if !ok {
		d.stale(ctx, id)
		return nil, repositories.ErrNotFound
	}
	return &Form{d: d, mode: ModeEdit, base: rec, draft: rec.Input(), open: true}, nil
}

func (f *Form) Mode() Mode { return f.mode }

// RecordID is the edit target, empty for add forms.
func (f *Form) RecordID() string { return f.base.ID }

// Draft returns a copy of the staged input.
func (f *Form) Draft() entities.DeviceTestInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// SetDraft replaces the staged input.
func (f *Form) SetDraft(in entities.DeviceTestInput) {
	f.mu.Lock()
	f.draft = in
	f.mu.Unlock()
}

// Edit changes the draft in place.
func (f *Form) Edit(fn func(*entities.DeviceTestInput)) {
	f.mu.Lock()
	fn(&f.draft)
	f.mu.Unlock()
}

// Errors returns the field errors of the last rejected submission.
func (f *Form) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr == nil {
		return nil
	}
	out := make(map[string]string, len(f.lastErr.Fields))
	for k, v := range f.lastErr.Fields {
		out[k] = v
	}
	return out
}

func (f *Form) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Close discards the draft without touching the store. A submission still
// in flight completes, but its result is ignored by the form.
func (f *Form) Close() {
	f.mu.Lock()
	f.open = false
	f.draft = entities.DeviceTestInput{}
	f.lastErr = nil
	f.mu.Unlock()
}

// Submit validates the draft and writes it to the store.
//
// A *entities.ValidationError comes back with OutcomeInvalid and the draft
// intact; the store is not called. Store failures are returned as is with the
// draft intact and the form open. An edit whose record was deleted meanwhile
// returns OutcomeStale with a nil error after refreshing the view.
func (f *Form) Submit(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return Result{}, ErrClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	}
	f.submitting = true
	draft := f.draft
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	if err := f.d.guard(); err != nil {
		return Result{}, err
	}

	rec, err := f.d.currentValidator().Validate(draft)
	if err != nil {
		var verr *entities.ValidationError
		if errors.As(err, &verr) {
			f.mu.Lock()
			f.lastErr = verr
			f.mu.Unlock()
		}
		return Result{Outcome: OutcomeInvalid}, err
	}

	if f.mode == ModeEdit {
		release, err := f.d.acquire(f.base.ID)
		if err != nil {
			return Result{}, err
		}
		defer release()
	}

	var out *entities.DeviceTest
	if f.mode == ModeAdd {
		out = rec
		err = f.d.store.Create(ctx, out)
	} else {
		updated := f.base.Clone()
		usecases.ApplyEdit(&updated, *rec)
		out = &updated
		err = f.d.store.Update(ctx, out)
	}

	if errors.Is(err, repositories.ErrNotFound) {
		f.finish()
		return f.d.stale(ctx, f.base.ID), nil
	}
	if err != nil {
		return Result{}, err
	}

	applied := f.d.apply(*out)
	if !f.finish() || !applied {
		return Result{Outcome: OutcomeDiscarded, Record: out}, nil
	}
	return Result{Outcome: OutcomeCommitted, Record: out}, nil
}

// finish clears the draft and closes the form. It reports whether the form
// was still open.
func (f *Form) finish() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	wasOpen := f.open
	f.open = false
	f.draft = entities.DeviceTestInput{}
	f.lastErr = nil
	return wasOpen
}
