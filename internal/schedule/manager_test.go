package schedule

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emberhearth/scheduler/internal/database"
	"github.com/emberhearth/scheduler/internal/model"
	"github.com/emberhearth/scheduler/internal/store"
)

type recordingNotifier struct {
	actions []string
}

func (n *recordingNotifier) ScheduleChanged(action string, sched model.Schedule) {
	n.actions = append(n.actions, action+":"+sched.Title)
}

func newTestManager(t *testing.T) (*Manager, *recordingNotifier) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store.NewScheduleStore(db), notifier, logger), notifier
}

func mustCreate(t *testing.T, m *Manager, req CreateRequest) *model.Schedule {
	t.Helper()
	result, err := m.Create(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.OK {
		t.Fatalf("create rejected: %s", result.Message)
	}
	return result.Schedule
}

func TestCreateAssignsDefaultsByKind(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		kind model.Kind
		want model.Priority
	}{
		{model.KindRecurring, model.PriorityCritical},
		{model.KindAppointment, model.PriorityMedium},
		{model.KindTemporary, model.PriorityLow},
	}

	for i, tt := range tests {
		req := CreateRequest{
			Title: "Item",
			Kind:  tt.kind,
			Start: model.NewClock(8+2*i, 0),
			End:   model.NewClock(9+2*i, 0),
			Date:  d(2026, 2, 9),
		}
		if tt.kind == model.KindRecurring {
			req.Date = time.Time{}
			req.Anchor = d(2026, 2, 9)
			req.Pattern = "WEEKLY"
		}
		created := mustCreate(t, m, req)
		if created.Priority != tt.want {
			t.Errorf("%s priority = %s, want %s", tt.kind, created.Priority, tt.want)
		}
		if created.ID == "" {
			t.Errorf("%s should get an id", tt.kind)
		}
		if created.Collaboration != model.CollaborationNone || !created.IsQueryable {
			t.Errorf("%s without user involvement should be queryable with no negotiation", tt.kind)
		}
	}
}

func TestCreatePriorityOverride(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title:    "Urgent errand",
		Kind:     model.KindTemporary,
		Priority: model.PriorityHigh,
		Start:    model.NewClock(9, 0),
		End:      model.NewClock(10, 0),
		Date:     d(2026, 2, 9),
	})
	if created.Priority != model.PriorityHigh {
		t.Errorf("priority = %s, want high (explicit override)", created.Priority)
	}
}

func TestCreateValidationRejectedBeforeConflictLogic(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"end before start", CreateRequest{
			Title: "Backwards", Kind: model.KindAppointment,
			Start: model.NewClock(11, 0), End: model.NewClock(10, 0), Date: d(2026, 2, 9),
		}},
		{"missing title", CreateRequest{
			Kind:  model.KindAppointment,
			Start: model.NewClock(9, 0), End: model.NewClock(10, 0), Date: d(2026, 2, 9),
		}},
		{"unknown kind", CreateRequest{
			Title: "Huh", Kind: "meeting",
			Start: model.NewClock(9, 0), End: model.NewClock(10, 0), Date: d(2026, 2, 9),
		}},
		{"bad recurrence rule", CreateRequest{
			Title: "Class", Kind: model.KindRecurring, Anchor: d(2026, 2, 9), Pattern: "HOURLY",
			Start: model.NewClock(9, 0), End: model.NewClock(10, 0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := m.Create(tt.req)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if result.OK {
				t.Error("create should be rejected")
			}
			if result.Schedule != nil {
				t.Error("no schedule should be returned")
			}
		})
	}
}

// Scenario: a recurring class blocks a same-slot appointment in strict
// mode, naming the blocker, and the class is untouched.
func TestStrictModeRejectsEqualOrHigherPriority(t *testing.T) {
	m, _ := newTestManager(t)

	class := mustCreate(t, m, CreateRequest{
		Title:   "Class",
		Kind:    model.KindRecurring,
		Anchor:  d(2026, 2, 9), // Monday
		Pattern: "WEEKLY",
		Start:   model.NewClock(9, 0),
		End:     model.NewClock(11, 0),
	})

	result, err := m.Create(CreateRequest{
		Title:         "Meeting",
		Kind:          model.KindAppointment,
		Date:          d(2026, 2, 9),
		Start:         model.NewClock(10, 0),
		End:           model.NewClock(10, 30),
		CheckConflict: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.OK {
		t.Fatal("strict create should fail against a critical recurring class")
	}
	if !strings.Contains(result.Message, "Class") {
		t.Errorf("message should name the blocker, got %q", result.Message)
	}

	got, err := m.Get(class.ID)
	if err != nil {
		t.Fatalf("get class: %v", err)
	}
	if got == nil {
		t.Error("blocking schedule must be unmodified")
	}

	occurrences, err := m.InRange(d(2026, 2, 9), d(2026, 2, 10), false)
	if err != nil {
		t.Fatalf("in range: %v", err)
	}
	if len(occurrences) != 1 {
		t.Errorf("the rejected meeting must not be persisted, got %d occurrences", len(occurrences))
	}
}

// Scenario: auto-resolve evicts lower-priority filler.
func TestAutoResolveEvictsLowerPriority(t *testing.T) {
	m, notifier := newTestManager(t)

	reading := mustCreate(t, m, CreateRequest{
		Title: "Reading",
		Kind:  model.KindTemporary,
		Date:  d(2026, 2, 9),
		Start: model.NewClock(14, 0),
		End:   model.NewClock(15, 0),
	})

	result, err := m.Create(CreateRequest{
		Title:    "Doctor",
		Kind:     model.KindAppointment,
		Priority: model.PriorityHigh,
		Date:     d(2026, 2, 9),
		Start:    model.NewClock(14, 30),
		End:      model.NewClock(15, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.OK {
		t.Fatalf("auto-resolve create should win: %s", result.Message)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].ID != reading.ID {
		t.Errorf("evicted = %v, want Reading", result.Evicted)
	}

	got, err := m.Get(reading.ID)
	if err != nil {
		t.Fatalf("get reading: %v", err)
	}
	if got != nil {
		t.Error("Reading should be deleted")
	}

	doctor, err := m.Get(result.Schedule.ID)
	if err != nil {
		t.Fatalf("get doctor: %v", err)
	}
	if doctor == nil || doctor.Title != "Doctor" {
		t.Error("Doctor should be present")
	}

	var sawEviction bool
	for _, a := range notifier.actions {
		if a == "evicted:Reading" {
			sawEviction = true
		}
	}
	if !sawEviction {
		t.Errorf("eviction should be broadcast, got %v", notifier.actions)
	}
}

func TestAutoResolveIsAllOrNothing(t *testing.T) {
	m, _ := newTestManager(t)

	low := mustCreate(t, m, CreateRequest{
		Title: "Reading",
		Kind:  model.KindTemporary,
		Date:  d(2026, 2, 9),
		Start: model.NewClock(14, 0),
		End:   model.NewClock(15, 0),
	})
	mustCreate(t, m, CreateRequest{
		Title:    "Standup",
		Kind:     model.KindAppointment,
		Priority: model.PriorityHigh,
		Date:     d(2026, 2, 9),
		Start:    model.NewClock(15, 0),
		End:      model.NewClock(16, 0),
	})

	// Overlaps both: Reading (lower) and Standup (equal). The equal
	// blocker rejects the whole operation; Reading survives.
	result, err := m.Create(CreateRequest{
		Title:    "Errand",
		Kind:     model.KindAppointment,
		Priority: model.PriorityHigh,
		Date:     d(2026, 2, 9),
		Start:    model.NewClock(14, 30),
		End:      model.NewClock(15, 30),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.OK {
		t.Fatal("create should be rejected by the equal-priority blocker")
	}
	if !strings.Contains(result.Message, "Standup") {
		t.Errorf("message should name the blocker, got %q", result.Message)
	}

	got, err := m.Get(low.ID)
	if err != nil {
		t.Fatalf("get reading: %v", err)
	}
	if got == nil {
		t.Error("no eviction may happen when the operation is rejected")
	}
}

func TestStrictModeToleratesLowerPriorityOverlap(t *testing.T) {
	m, _ := newTestManager(t)

	low := mustCreate(t, m, CreateRequest{
		Title: "Reading",
		Kind:  model.KindTemporary,
		Date:  d(2026, 2, 9),
		Start: model.NewClock(14, 0),
		End:   model.NewClock(15, 0),
	})

	result, err := m.Create(CreateRequest{
		Title:         "Doctor",
		Kind:          model.KindAppointment,
		Priority:      model.PriorityHigh,
		Date:          d(2026, 2, 9),
		Start:         model.NewClock(14, 30),
		End:           model.NewClock(15, 0),
		CheckConflict: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.OK {
		t.Fatalf("strict mode only rejects equal-or-higher blockers: %s", result.Message)
	}

	// Strict mode never evicts.
	got, err := m.Get(low.ID)
	if err != nil {
		t.Fatalf("get reading: %v", err)
	}
	if got == nil {
		t.Error("strict mode must not evict")
	}
	if len(result.Evicted) != 0 {
		t.Errorf("evicted = %v, want none", result.Evicted)
	}
}

func TestBackToBackSchedulesDoNotConflict(t *testing.T) {
	m, _ := newTestManager(t)

	mustCreate(t, m, CreateRequest{
		Title: "First",
		Kind:  model.KindAppointment,
		Date:  d(2026, 2, 9),
		Start: model.NewClock(9, 0),
		End:   model.NewClock(10, 0),
	})

	result, err := m.Create(CreateRequest{
		Title:         "Second",
		Kind:          model.KindAppointment,
		Date:          d(2026, 2, 9),
		Start:         model.NewClock(10, 0),
		End:           model.NewClock(11, 0),
		CheckConflict: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.OK {
		t.Errorf("half-open intervals: end == start is not an overlap, got %q", result.Message)
	}
}

func TestRecurringCandidateCheckedOnItsFirings(t *testing.T) {
	m, _ := newTestManager(t)

	// Existing appointment on Saturday Feb 14.
	mustCreate(t, m, CreateRequest{
		Title: "Brunch",
		Kind:  model.KindAppointment,
		Date:  d(2026, 2, 14),
		Start: model.NewClock(10, 0),
		End:   model.NewClock(12, 0),
	})

	// Weekend rule anchored on Monday Feb 9 first fires Saturday Feb 14.
	result, err := m.Create(CreateRequest{
		Title:         "Hike",
		Kind:          model.KindRecurring,
		Anchor:        d(2026, 2, 9),
		Pattern:       "WEEKENDS",
		Start:         model.NewClock(9, 0),
		End:           model.NewClock(11, 0),
		Priority:      model.PriorityMedium,
		CheckConflict: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.OK {
		t.Error("recurring candidate should be conflict-checked on its firing dates")
	}
}

// A candidate whose rhythm differs from an existing schedule's can clash
// on a firing well past its first: the weekend rule below first fires on
// a Saturday where the Sunday class is absent, but every Sunday after
// that is double-booked.
func TestRecurringCandidateClashOnLaterFiring(t *testing.T) {
	m, _ := newTestManager(t)

	class := mustCreate(t, m, CreateRequest{
		Title:   "Class",
		Kind:    model.KindRecurring,
		Anchor:  d(2026, 2, 8), // Sunday
		Pattern: "WEEKLY",
		Start:   model.NewClock(10, 0),
		End:     model.NewClock(12, 0),
	})

	result, err := m.Create(CreateRequest{
		Title:         "Hike",
		Kind:          model.KindRecurring,
		Anchor:        d(2026, 2, 9), // Monday; first fires Saturday Feb 14
		Pattern:       "WEEKENDS",
		Start:         model.NewClock(10, 0),
		End:           model.NewClock(12, 0),
		Priority:      model.PriorityCritical,
		CheckConflict: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.OK {
		t.Fatal("strict create must fail when any firing clashes with an equal-priority schedule")
	}
	if !strings.Contains(result.Message, "Class") {
		t.Errorf("message should name the blocker, got %q", result.Message)
	}

	if got, _ := m.Get(class.ID); got == nil {
		t.Error("blocking schedule must be unmodified")
	}
	occurrences, err := m.InRange(d(2026, 2, 15), d(2026, 2, 16), false)
	if err != nil {
		t.Fatalf("in range: %v", err)
	}
	if len(occurrences) != 1 {
		t.Errorf("Sunday Feb 15 should hold only the class, got %d occurrences", len(occurrences))
	}
}

func TestCreateRejectsRuleThatNeverFires(t *testing.T) {
	m, _ := newTestManager(t)

	// Weekend rule ending on a Thursday, before its first weekend.
	end := d(2026, 2, 12)
	result, err := m.Create(CreateRequest{
		Title:         "Hike",
		Kind:          model.KindRecurring,
		Anchor:        d(2026, 2, 9),
		Pattern:       "WEEKENDS",
		RecurrenceEnd: &end,
		Start:         model.NewClock(9, 0),
		End:           model.NewClock(11, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.OK {
		t.Error("a rule that never fires should be rejected")
	}
	if !strings.Contains(result.Message, "never fires") {
		t.Errorf("message = %q", result.Message)
	}
}

// Scenario: a user-involving schedule goes through the pending ->
// confirmed lifecycle and becomes visible to planning queries.
func TestCollaborationLifecycle(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title:        "Movie night",
		Kind:         model.KindTemporary,
		Date:         d(2026, 2, 9),
		Start:        model.NewClock(20, 0),
		End:          model.NewClock(22, 0),
		InvolvesUser: true,
	})
	if created.Collaboration != model.CollaborationPending {
		t.Fatalf("collaboration = %q, want pending", created.Collaboration)
	}
	if created.IsQueryable {
		t.Fatal("pending schedule must not be queryable")
	}

	queryable, err := m.InRange(d(2026, 2, 9), d(2026, 2, 10), true)
	if err != nil {
		t.Fatalf("in range: %v", err)
	}
	if len(queryable) != 0 {
		t.Errorf("pending schedule should be hidden from queryable-only range, got %d", len(queryable))
	}

	ok, err := m.Confirm(created.ID, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !ok {
		t.Fatal("confirming a pending schedule should succeed")
	}

	got, _ := m.Get(created.ID)
	if got.Collaboration != model.CollaborationConfirmed {
		t.Errorf("collaboration = %q, want confirmed", got.Collaboration)
	}
	if !got.IsQueryable {
		t.Error("confirmed schedule should be queryable")
	}

	queryable, err = m.InRange(d(2026, 2, 9), d(2026, 2, 10), true)
	if err != nil {
		t.Fatalf("in range: %v", err)
	}
	if len(queryable) != 1 {
		t.Errorf("confirmed schedule should appear in queryable-only range, got %d", len(queryable))
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title:        "Movie night",
		Kind:         model.KindTemporary,
		Date:         d(2026, 2, 9),
		Start:        model.NewClock(20, 0),
		End:          model.NewClock(22, 0),
		InvolvesUser: true,
	})

	if ok, _ := m.Confirm(created.ID, true); !ok {
		t.Fatal("first confirm should succeed")
	}
	if ok, _ := m.Confirm(created.ID, true); ok {
		t.Error("second confirm must be a no-op returning false")
	}
	if ok, _ := m.Confirm(created.ID, false); ok {
		t.Error("declining a confirmed schedule must be a no-op")
	}

	got, _ := m.Get(created.ID)
	if got.Collaboration != model.CollaborationConfirmed {
		t.Errorf("state changed by no-op confirm: %q", got.Collaboration)
	}
}

func TestConfirmDecline(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title:        "Movie night",
		Kind:         model.KindTemporary,
		Date:         d(2026, 2, 9),
		Start:        model.NewClock(20, 0),
		End:          model.NewClock(22, 0),
		InvolvesUser: true,
	})

	ok, err := m.Confirm(created.ID, false)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !ok {
		t.Fatal("declining a pending schedule should succeed")
	}

	got, _ := m.Get(created.ID)
	if got.Collaboration != model.CollaborationDeclined {
		t.Errorf("collaboration = %q, want declined", got.Collaboration)
	}
	if got.IsQueryable {
		t.Error("declined schedule must stay unqueryable")
	}

	// Declined schedules free their slot.
	occurrences, err := m.OnDate(d(2026, 2, 9))
	if err != nil {
		t.Fatalf("on date: %v", err)
	}
	if len(occurrences) != 0 {
		t.Errorf("declined schedule should not occupy time, got %d", len(occurrences))
	}
}

func TestConfirmUnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	ok, err := m.Confirm("missing", true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ok {
		t.Error("unknown id should be a no-op returning false")
	}
}

func TestPendingOrderedSoonestFirst(t *testing.T) {
	m, _ := newTestManager(t)

	mustCreate(t, m, CreateRequest{
		Title:        "Later",
		Kind:         model.KindAppointment,
		Date:         d(2026, 2, 11),
		Start:        model.NewClock(9, 0),
		End:          model.NewClock(10, 0),
		InvolvesUser: true,
	})
	mustCreate(t, m, CreateRequest{
		Title:        "Sooner",
		Kind:         model.KindAppointment,
		Date:         d(2026, 2, 10),
		Start:        model.NewClock(15, 0),
		End:          model.NewClock(16, 0),
		InvolvesUser: true,
	})

	pending, err := m.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Title != "Sooner" || pending[1].Title != "Later" {
		t.Errorf("order = [%s, %s], want [Sooner, Later]", pending[0].Title, pending[1].Title)
	}
}

func TestUpdatePartial(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title: "Dentist",
		Kind:  model.KindAppointment,
		Date:  d(2026, 2, 9),
		Start: model.NewClock(10, 0),
		End:   model.NewClock(11, 0),
	})

	location := "Clinic"
	start := model.NewClock(14, 0)
	end := model.NewClock(15, 0)
	updated, err := m.Update(created.ID, model.Update{Location: &location, Start: &start, End: &end})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Location != "Clinic" || updated.Start != start || updated.End != end {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Title != "Dentist" {
		t.Errorf("title = %q, should be untouched", updated.Title)
	}
}

func TestUpdateRejectsInvalidInterval(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title: "Dentist",
		Kind:  model.KindAppointment,
		Date:  d(2026, 2, 9),
		Start: model.NewClock(10, 0),
		End:   model.NewClock(11, 0),
	})

	badEnd := model.NewClock(9, 0)
	_, err := m.Update(created.ID, model.Update{End: &badEnd})
	if err == nil {
		t.Error("update that breaks end > start should error")
	}
	if !errors.Is(err, ErrInvalidUpdate) {
		t.Errorf("err = %v, want ErrInvalidUpdate so transports can map it to a caller error", err)
	}

	got, _ := m.Get(created.ID)
	if got.End != model.NewClock(11, 0) {
		t.Error("failed update must not persist")
	}
}

func TestUpdateUnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	title := "Ghost"
	updated, err := m.Update("missing", model.Update{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated != nil {
		t.Error("unknown id should return nil")
	}
}

func TestDeleteUnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	deleted, err := m.Delete("missing")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Error("unknown id should report false")
	}
}

func TestGeneratedReasonPersisted(t *testing.T) {
	m, _ := newTestManager(t)

	created := mustCreate(t, m, CreateRequest{
		Title:           "Stretch break",
		Kind:            model.KindTemporary,
		Date:            d(2026, 2, 9),
		Start:           model.NewClock(16, 0),
		End:             model.NewClock(16, 15),
		GeneratedReason: "filled idle afternoon slot",
	})
	if created.GeneratedReason != "filled idle afternoon slot" {
		t.Errorf("generated_reason = %q", created.GeneratedReason)
	}
}
