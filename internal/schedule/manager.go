package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberhearth/scheduler/internal/model"
	"github.com/emberhearth/scheduler/internal/recurrence"
	"github.com/emberhearth/scheduler/internal/store"
)

// ErrInvalidUpdate marks a partial update that fails validation, so
// transports can tell a caller mistake from a persistence failure.
var ErrInvalidUpdate = errors.New("invalid update")

// Notifier receives change events for connected GUI panels. A nil
// notifier is allowed.
type Notifier interface {
	ScheduleChanged(action string, sched model.Schedule)
}

// Manager is the engine's public API. All mutations are serialized by a
// single mutex so the detect/evict/insert sequence of a create cannot
// interleave with another caller's write.
type Manager struct {
	mu       sync.Mutex
	store    *store.ScheduleStore
	notifier Notifier
	logger   *slog.Logger
}

func NewManager(st *store.ScheduleStore, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{store: st, notifier: notifier, logger: logger}
}

// CreateRequest carries everything the create path needs. Priority 0
// means "assign the kind's default". CheckConflict selects strict mode;
// otherwise conflicts with strictly lower priority are evicted.
type CreateRequest struct {
	Title           string
	Description     string
	Location        string
	Kind            model.Kind
	Priority        model.Priority
	Start           model.Clock
	End             model.Clock
	Date            time.Time
	Anchor          time.Time
	Pattern         string
	RecurrenceEnd   *time.Time
	InvolvesUser    bool
	GeneratedReason string
	Metadata        string
	CheckConflict   bool
}

// Result is the outcome of a create. Conflicts are not errors: OK=false
// with a message naming the blockers lets the conversational layer offer
// alternatives. The error return is reserved for persistence failures.
type Result struct {
	OK       bool
	Schedule *model.Schedule
	Message  string
	Evicted  []model.Schedule
}

func reject(message string) Result {
	return Result{Message: message}
}

// Create validates the request, runs conflict detection and resolution,
// and persists the winner. Evictions and the insert commit atomically.
func (m *Manager) Create(req CreateRequest) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sched, err := m.buildSchedule(req)
	if err != nil {
		return reject(err.Error()), nil
	}

	checkDates := conflictDates(sched)
	if len(checkDates) == 0 {
		return reject("recurrence rule never fires"), nil
	}

	stored, err := m.store.List()
	if err != nil {
		return Result{}, fmt.Errorf("load schedules: %w", err)
	}

	conflicts := findConflictsOnDates(stored, Interval{Start: sched.Start, End: sched.End}, checkDates, 0, "")

	var blockers, victims []model.Schedule
	for _, c := range conflicts {
		if c.Priority >= sched.Priority {
			blockers = append(blockers, c)
		} else {
			victims = append(victims, c)
		}
	}

	if len(blockers) > 0 {
		return reject("conflicts with " + describeBlockers(blockers)), nil
	}

	if req.CheckConflict || len(victims) == 0 {
		created, err := m.store.Create(*sched)
		if err != nil {
			return Result{}, err
		}
		m.notify("created", *created)
		return Result{OK: true, Schedule: created, Message: "schedule created"}, nil
	}

	// Auto-resolve: evict every lower-priority conflict together with
	// the insert, so a failure leaves nothing half-applied.
	evictIDs := make([]string, len(victims))
	for i, v := range victims {
		evictIDs[i] = v.ID
	}
	created, err := m.store.CreateEvicting(*sched, evictIDs)
	if err != nil {
		return Result{}, err
	}

	for _, v := range victims {
		m.notify("evicted", v)
	}
	m.notify("created", *created)
	m.logger.Info("schedules evicted by higher priority create",
		"schedule_id", created.ID, "evicted", len(victims))

	return Result{
		OK:       true,
		Schedule: created,
		Message:  fmt.Sprintf("schedule created, replaced %d lower-priority item(s)", len(victims)),
		Evicted:  victims,
	}, nil
}

func (m *Manager) buildSchedule(req CreateRequest) (*model.Schedule, error) {
	priority := req.Priority
	if priority == 0 {
		priority = model.DefaultPriority(req.Kind)
	}

	collab := model.CollaborationNone
	if req.InvolvesUser {
		collab = model.CollaborationPending
	}

	sched := &model.Schedule{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Location:        req.Location,
		Kind:            req.Kind,
		Priority:        priority,
		Start:           req.Start,
		End:             req.End,
		Collaboration:   collab,
		InvolvesUser:    req.InvolvesUser,
		IsQueryable:     collab != model.CollaborationPending,
		GeneratedReason: req.GeneratedReason,
		Metadata:        req.Metadata,
	}

	switch req.Kind {
	case model.KindRecurring:
		sched.Anchor = model.DateOnly(req.Anchor)
		sched.RecurrenceRule = req.Pattern
		if req.RecurrenceEnd != nil {
			end := model.DateOnly(*req.RecurrenceEnd)
			sched.RecurrenceEnd = &end
		}
	default:
		sched.Date = model.DateOnly(req.Date)
	}

	if !sched.Start.Valid() || !sched.End.Valid() {
		return nil, fmt.Errorf("clock times must fall within a single day")
	}
	if sched.Kind == model.KindRecurring {
		if _, err := recurrence.Parse(sched.RecurrenceRule); err != nil {
			return nil, fmt.Errorf("invalid recurrence rule: %w", err)
		}
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	return sched, nil
}

// conflictDateHorizon bounds how far ahead a recurring candidate's
// firings are conflict-checked. Clashes beyond a year out are accepted;
// the stored schedules that far ahead will themselves be checked when
// they change.
const conflictDateHorizon = 366

// conflictDates returns every date the candidate must be checked on:
// the stored date for single-occurrence kinds, each firing within the
// horizon for recurring templates. A recurring template whose weekly
// rhythm differs from an existing schedule's can clash on a late firing
// only, so one check date is not enough. Empty means the rule never
// fires.
func conflictDates(sched *model.Schedule) []time.Time {
	if sched.Kind != model.KindRecurring {
		return []time.Time{sched.Date}
	}
	pattern, err := recurrence.Parse(sched.RecurrenceRule)
	if err != nil {
		return nil
	}
	var dates []time.Time
	day := model.DateOnly(sched.Anchor)
	for i := 0; i < conflictDateHorizon; i++ {
		if pattern.AppliesTo(sched.Anchor, sched.RecurrenceEnd, day) {
			dates = append(dates, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return dates
}

func describeBlockers(blockers []model.Schedule) string {
	parts := make([]string, len(blockers))
	for i, b := range blockers {
		parts[i] = fmt.Sprintf("%q (%s-%s, %s)", b.Title, b.Start, b.End, b.Priority)
	}
	return strings.Join(parts, ", ")
}

// Get returns a schedule by id, or nil when it does not exist.
func (m *Manager) Get(id string) (*model.Schedule, error) {
	return m.store.GetByID(id)
}

// Update applies a partial update and returns the stored result, or nil
// when the id is unknown.
func (m *Manager) Update(id string, u model.Update) (*model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updated := *existing
	u.Apply(&updated)
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}

	saved, err := m.store.Save(updated)
	if err != nil {
		return nil, err
	}
	m.notify("updated", *saved)
	return saved, nil
}

// Delete removes a schedule, reporting whether it existed.
func (m *Manager) Delete(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetByID(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	deleted, err := m.store.Delete(id)
	if err != nil {
		return false, err
	}
	if deleted {
		m.notify("deleted", *existing)
	}
	return deleted, nil
}

func (m *Manager) notify(action string, sched model.Schedule) {
	if m.notifier != nil {
		m.notifier.ScheduleChanged(action, sched)
	}
}
