package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/emberhearth/scheduler/internal/model"
)

const dateLayout = "2006-01-02"

const scheduleColumns = `id, title, description, location, kind, priority,
	start_minute, end_minute, event_date, anchor_date, recurrence_rule,
	recurrence_end, collaboration, involves_user, is_queryable,
	generated_reason, metadata, created_at`

type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// Create inserts a fully populated schedule and returns the stored row.
func (s *ScheduleStore) Create(sched model.Schedule) (*model.Schedule, error) {
	if err := insertSchedule(s.db, sched); err != nil {
		return nil, err
	}
	return s.GetByID(sched.ID)
}

// CreateEvicting deletes the given victims and inserts the schedule in a
// single transaction, so a failed insert leaves the victims in place.
func (s *ScheduleStore) CreateEvicting(sched model.Schedule, evictIDs []string) (*model.Schedule, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin eviction tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range evictIDs {
		if _, err := tx.Exec("DELETE FROM schedules WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("evict schedule %s: %w", id, err)
		}
	}

	if err := insertSchedule(tx, sched); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit eviction tx: %w", err)
	}
	return s.GetByID(sched.ID)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertSchedule(db execer, sched model.Schedule) error {
	_, err := db.Exec(
		`INSERT INTO schedules (id, title, description, location, kind, priority,
		 start_minute, end_minute, event_date, anchor_date, recurrence_rule,
		 recurrence_end, collaboration, involves_user, is_queryable,
		 generated_reason, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.Title, sched.Description, sched.Location,
		string(sched.Kind), int(sched.Priority),
		int(sched.Start), int(sched.End),
		nullDate(sched.Date), nullDate(sched.Anchor), sched.RecurrenceRule,
		nullDatePtr(sched.RecurrenceEnd), string(sched.Collaboration),
		boolInt(sched.InvolvesUser), boolInt(sched.IsQueryable),
		sched.GeneratedReason, sched.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) GetByID(id string) (*model.Schedule, error) {
	row := s.db.QueryRow(
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id,
	)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	return sched, nil
}

// List returns every stored schedule. Recurring templates are single
// rows; the engine expands them per date.
func (s *ScheduleStore) List() ([]model.Schedule, error) {
	return s.list("SELECT " + scheduleColumns + " FROM schedules ORDER BY start_minute ASC, priority DESC")
}

// ListByCollaboration returns schedules in the given negotiation state,
// soonest start first. Recurring rows have no event_date; their anchor
// stands in so they sort with the single-occurrence rows.
func (s *ScheduleStore) ListByCollaboration(c model.Collaboration) ([]model.Schedule, error) {
	return s.list(
		"SELECT "+scheduleColumns+" FROM schedules WHERE collaboration = ? ORDER BY COALESCE(event_date, anchor_date) ASC, start_minute ASC",
		string(c),
	)
}

func (s *ScheduleStore) list(query string, args ...any) ([]model.Schedule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *sched)
	}
	return schedules, rows.Err()
}

// Save persists the mutable fields of an existing schedule.
func (s *ScheduleStore) Save(sched model.Schedule) (*model.Schedule, error) {
	_, err := s.db.Exec(
		`UPDATE schedules
		 SET title = ?, description = ?, location = ?, priority = ?,
		     start_minute = ?, end_minute = ?, event_date = ?, anchor_date = ?,
		     recurrence_end = ?, metadata = ?
		 WHERE id = ?`,
		sched.Title, sched.Description, sched.Location, int(sched.Priority),
		int(sched.Start), int(sched.End),
		nullDate(sched.Date), nullDate(sched.Anchor),
		nullDatePtr(sched.RecurrenceEnd), sched.Metadata,
		sched.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return s.GetByID(sched.ID)
}

// SetCollaboration transitions a pending schedule to the given terminal
// state. It returns false when the row is missing or no longer pending,
// so a racing second confirmation becomes a no-op.
func (s *ScheduleStore) SetCollaboration(id string, c model.Collaboration, queryable bool) (bool, error) {
	result, err := s.db.Exec(
		"UPDATE schedules SET collaboration = ?, is_queryable = ? WHERE id = ? AND collaboration = ?",
		string(c), boolInt(queryable), id, string(model.CollaborationPending),
	)
	if err != nil {
		return false, fmt.Errorf("update collaboration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a schedule, reporting whether a row existed.
func (s *ScheduleStore) Delete(id string) (bool, error) {
	result, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete schedule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var (
		sched                 model.Schedule
		kind, collab          string
		priority, start, end  int
		involves, queryable   int
		eventDate, anchorDate sql.NullString
		recurrenceEnd         sql.NullString
	)

	err := row.Scan(
		&sched.ID, &sched.Title, &sched.Description, &sched.Location,
		&kind, &priority, &start, &end,
		&eventDate, &anchorDate, &sched.RecurrenceRule, &recurrenceEnd,
		&collab, &involves, &queryable,
		&sched.GeneratedReason, &sched.Metadata, &sched.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sched.Kind = model.Kind(kind)
	sched.Priority = model.Priority(priority)
	sched.Start = model.Clock(start)
	sched.End = model.Clock(end)
	sched.Collaboration = model.Collaboration(collab)
	sched.InvolvesUser = involves != 0
	sched.IsQueryable = queryable != 0

	if eventDate.Valid {
		d, err := time.Parse(dateLayout, eventDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse event_date: %w", err)
		}
		sched.Date = d
	}
	if anchorDate.Valid {
		d, err := time.Parse(dateLayout, anchorDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse anchor_date: %w", err)
		}
		sched.Anchor = d
	}
	if recurrenceEnd.Valid {
		d, err := time.Parse(dateLayout, recurrenceEnd.String)
		if err != nil {
			return nil, fmt.Errorf("parse recurrence_end: %w", err)
		}
		sched.RecurrenceEnd = &d
	}

	return &sched, nil
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func nullDatePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullDate(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
