// Package dashboard holds the operator's view of the fleet: the cached record
// set, the active filter, fleet stats, lifecycle actions and the add/edit
// forms. It runs on any repositories.DeviceTestRepository, local or remote.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"stresstest-server/auth"
	"stresstest-server/entities"
	"stresstest-server/logs"
	"stresstest-server/repositories"
	"stresstest-server/usecases"
)

var (
	// ErrSubmitInFlight is returned when a write for the same record (or the
	// same form) has not finished yet.
	ErrSubmitInFlight = errors.New("a submission for this record is already in flight")
	// ErrClosed is returned by a dashboard or form that was closed.
	ErrClosed = errors.New("closed")
)

// DefaultOptimisticTTL is how long a created record stays in the view
// without showing up in a list() from the store.
const DefaultOptimisticTTL = 30 * time.Second

// Lifecycle is implemented by stores that run transitions themselves, such
// as the HTTP client. Other stores get a local read-modify-write.
type Lifecycle interface {
	Start(ctx context.Context, id string) (*entities.DeviceTest, error)
	Complete(ctx context.Context, id string) (*entities.DeviceTest, error)
	Fail(ctx context.Context, id string) (*entities.DeviceTest, error)
}

// Outcome tells the caller what happened to an action.
type Outcome int

const (
	// OutcomeCommitted means the store accepted the write.
	OutcomeCommitted Outcome = iota
	// OutcomeInvalid means validation failed; nothing was sent to the store.
	OutcomeInvalid
	// OutcomeStale means the target record no longer exists; the action was
	// dropped and the view refreshed.
	OutcomeStale
	// OutcomeDiscarded means the owning form or dashboard was closed before
	// the store answered; the answer was ignored.
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeStale:
		return "stale"
	default:
		return "discarded"
	}
}

// Result is returned by every write the dashboard performs.
type Result struct {
	Outcome Outcome
	Record  *entities.DeviceTest
}

// Options configures a Dashboard. Zero values pick the defaults.
type Options struct {
	Validator     entities.Validator
	OptimisticTTL time.Duration
	Now           func() time.Time
}

type optimistic struct {
	record  entities.DeviceTest
	addedAt time.Time
}

// localWrite is a change this dashboard committed. A list that started before
// gen may not contain it yet.
type localWrite struct {
	record  entities.DeviceTest
	removed bool
	gen     uint64
}

// Dashboard is one operator session's view state.
type Dashboard struct {
	store     repositories.DeviceTestRepository
	lifecycle Lifecycle
	session   *auth.Session
	validator entities.Validator
	ttl       time.Duration
	now       func() time.Time

	mu         sync.Mutex
	records    []entities.DeviceTest // as of the last list()
	optimistic []optimistic          // created locally, not yet listed
	criteria   usecases.FilterCriteria
	inFlight   map[string]struct{}
	gen        uint64
	writes     map[string]localWrite
	closed     bool
}

// New builds a dashboard over store. A nil session means no authentication
// gate.
func New(store repositories.DeviceTestRepository, session *auth.Session, opts Options) *Dashboard {
	d := &Dashboard{
		store:     store,
		session:   session,
		validator: opts.Validator,
		ttl:       opts.OptimisticTTL,
		now:       opts.Now,
		criteria:  usecases.FilterCriteria{Status: usecases.FilterAll, Version: usecases.FilterAll},
		inFlight:  make(map[string]struct{}),
		writes:    make(map[string]localWrite),
	}
	if d.ttl <= 0 {
		d.ttl = DefaultOptimisticTTL
	}
	if d.now == nil {
		d.now = func() time.Time { return time.Now().UTC() }
	}
	if lc, ok := store.(Lifecycle); ok {
		d.lifecycle = lc
	} else {
		d.lifecycle = localLifecycle{store: store, now: d.now}
	}
	return d
}

// Refresh reloads the record set from the store. Optimistic entries the store
// does not list yet are kept until they expire, and writes committed while
// the list was in flight win over the listed copy. On failure the view is
// left as it was.
func (d *Dashboard) Refresh(ctx context.Context) error {
	if err := d.guard(); err != nil {
		return err
	}
	d.mu.Lock()
	since := d.gen
	d.mu.Unlock()

	list, err := d.store.List(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for id, w := range d.writes {
		if w.gen <= since {
			delete(d.writes, id)
		}
	}
	merged := make([]entities.DeviceTest, 0, len(list))
	listed := make(map[string]struct{}, len(list))
	for _, r := range list {
		if w, ok := d.writes[r.ID]; ok {
			if w.removed {
				continue
			}
			r = w.record.Clone()
		}
		listed[r.ID] = struct{}{}
		merged = append(merged, r)
	}
	now := d.now()
	kept := d.optimistic[:0]
	for _, o := range d.optimistic {
		if _, ok := listed[o.record.ID]; ok {
			continue
		}
		if now.Sub(o.addedAt) > d.ttl {
			logs.Logger.WithField("device_test_id", o.record.ID).Debug("dropping unconfirmed record")
			continue
		}
		kept = append(kept, o)
	}
	d.optimistic = kept
	d.records = merged
	return nil
}

// Records returns every record in the view, listed ones first, then those
// created locally and not yet listed.
func (d *Dashboard) Records() []entities.DeviceTest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allLocked()
}

func (d *Dashboard) allLocked() []entities.DeviceTest {
	out := make([]entities.DeviceTest, 0, len(d.records)+len(d.optimistic))
	for _, r := range d.records {
		out = append(out, r.Clone())
	}
	for _, o := range d.optimistic {
		out = append(out, o.record.Clone())
	}
	return out
}

// Record returns one record of the view.
func (d *Dashboard) Record(id string) (entities.DeviceTest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.allLocked() {
		if r.ID == id {
			return r, true
		}
	}
	return entities.DeviceTest{}, false
}

// SetCriteria replaces the active filter.
func (d *Dashboard) SetCriteria(c usecases.FilterCriteria) {
	d.mu.Lock()
	d.criteria = c
	d.mu.Unlock()
}

func (d *Dashboard) Criteria() usecases.FilterCriteria {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.criteria
}

// View is the filtered record set, recomputed on every call.
func (d *Dashboard) View() []entities.DeviceTest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return usecases.Filter(d.allLocked(), d.criteria)
}

// Stats counts the whole record set, ignoring the filter.
func (d *Dashboard) Stats() usecases.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return usecases.Aggregate(d.allLocked())
}

// Versions lists the software versions the add and edit forms offer.
func (d *Dashboard) Versions() []string {
	return d.currentValidator().AllowedVersions
}

// SetValidator replaces the gate used by forms, for instance once the
// server's version list is known.
func (d *Dashboard) SetValidator(v entities.Validator) {
	d.mu.Lock()
	d.validator = v
	d.mu.Unlock()
}

func (d *Dashboard) currentValidator() entities.Validator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validator
}

// Start moves a pending test to running.
func (d *Dashboard) Start(ctx context.Context, id string) (Result, error) {
	return d.act(ctx, id, d.lifecycle.Start)
}

// MarkCompleted finishes a running test and records its elapsed hours.
func (d *Dashboard) MarkCompleted(ctx context.Context, id string) (Result, error) {
	return d.act(ctx, id, d.lifecycle.Complete)
}

// MarkFailed marks a running test as failed.
func (d *Dashboard) MarkFailed(ctx context.Context, id string) (Result, error) {
	return d.act(ctx, id, d.lifecycle.Fail)
}

func (d *Dashboard) act(ctx context.Context, id string, fn func(context.Context, string) (*entities.DeviceTest, error)) (Result, error) {
	if err := d.guard(); err != nil {
		return Result{}, err
	}
	release, err := d.acquire(id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	rec, err := fn(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return d.stale(ctx, id), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !d.apply(*rec) {
		return Result{Outcome: OutcomeDiscarded, Record: rec}, nil
	}
	return Result{Outcome: OutcomeCommitted, Record: rec}, nil
}

// Delete removes a record. Deleting a record that is already gone is not an
// error; the view is refreshed instead.
func (d *Dashboard) Delete(ctx context.Context, id string) (Result, error) {
	if err := d.guard(); err != nil {
		return Result{}, err
	}
	release, err := d.acquire(id)
	if err != nil {
		return Result{}, err
	}
	defer release()

	err = d.store.Delete(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return d.stale(ctx, id), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !d.remove(id) {
		return Result{Outcome: OutcomeDiscarded}, nil
	}
	return Result{Outcome: OutcomeCommitted}, nil
}

// Close ends the session view. Store calls still in flight finish, but their
// results no longer touch the view.
func (d *Dashboard) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// guard rejects actions on a closed dashboard or without a signed-in user.
func (d *Dashboard) guard() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if d.session != nil {
		if _, err := d.session.Require(); err != nil {
			return err
		}
	}
	return nil
}

// acquire marks key as having a write in flight.
func (d *Dashboard) acquire(key string) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[key]; busy {
		return nil, ErrSubmitInFlight
	}
	d.inFlight[key] = struct{}{}
	return func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}, nil
}

// InFlight reports whether a write for id is pending.
func (d *Dashboard) InFlight(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[id]
	return ok
}

// stale drops the record locally and reloads the view from the store.
func (d *Dashboard) stale(ctx context.Context, id string) Result {
	d.remove(id)
	if err := d.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		logs.Logger.WithError(err).WithField("device_test_id", id).Warn("refresh after stale action failed")
	}
	return Result{Outcome: OutcomeStale}
}

// apply replaces (or appends) rec in the view. It returns false when the
// dashboard is closed.
func (d *Dashboard) apply(rec entities.DeviceTest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.gen++
	d.writes[rec.ID] = localWrite{record: rec.Clone(), gen: d.gen}
	for i := range d.records {
		if d.records[i].ID == rec.ID {
			d.records[i] = rec.Clone()
			return true
		}
	}
	for i := range d.optimistic {
		if d.optimistic[i].record.ID == rec.ID {
			d.optimistic[i].record = rec.Clone()
			return true
		}
	}
	d.optimistic = append(d.optimistic, optimistic{record: rec.Clone(), addedAt: d.now()})
	return true
}

func (d *Dashboard) remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.gen++
	d.writes[id] = localWrite{removed: true, gen: d.gen}
	for i := range d.records {
		if d.records[i].ID == id {
			d.records = append(d.records[:i:i], d.records[i+1:]...)
			break
		}
	}
	for i := range d.optimistic {
		if d.optimistic[i].record.ID == id {
			d.optimistic = append(d.optimistic[:i:i], d.optimistic[i+1:]...)
			break
		}
	}
	return true
}

// localLifecycle applies transitions with a read-modify-write on the store.
type localLifecycle struct {
	store repositories.DeviceTestRepository
	now   func() time.Time
}

func (l localLifecycle) Start(ctx context.Context, id string) (*entities.DeviceTest, error) {
	return l.run(ctx, id, usecases.Start)
}

func (l localLifecycle) Complete(ctx context.Context, id string) (*entities.DeviceTest, error) {
	return l.run(ctx, id, usecases.MarkCompleted)
}

func (l localLifecycle) Fail(ctx context.Context, id string) (*entities.DeviceTest, error) {
	return l.run(ctx, id, usecases.MarkFailed)
}

func (l localLifecycle) run(ctx context.Context, id string, fn func(*entities.DeviceTest, time.Time) (bool, error)) (*entities.DeviceTest, error) {
	t, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(t, l.now())
	if err != nil || !changed {
		return t, err
	}
	if err := l.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
