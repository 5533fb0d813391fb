package schedule

import (
	"github.com/emberhearth/scheduler/internal/model"
)

// Confirm resolves a pending negotiation. accept moves the schedule to
// confirmed and makes it queryable; otherwise it is marked declined and
// stays invisible to planning queries. Confirm is a no-op returning
// false when the id is unknown or the schedule is not pending, so a
// second confirmation of the same schedule cannot double-apply.
func (m *Manager) Confirm(id string, accept bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetByID(id)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.Collaboration != model.CollaborationPending {
		return false, nil
	}

	state := model.CollaborationConfirmed
	action := "confirmed"
	if !accept {
		state = model.CollaborationDeclined
		action = "declined"
	}

	// The store transitions only rows still pending, so this is safe
	// even if another caller raced us to the same id.
	ok, err := m.store.SetCollaboration(id, state, accept)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	updated, err := m.store.GetByID(id)
	if err != nil {
		return false, err
	}
	if updated != nil {
		m.notify(action, *updated)
	}
	return true, nil
}

// Pending returns every schedule awaiting the user's confirmation,
// soonest first, so the caller can negotiate the next upcoming item.
func (m *Manager) Pending() ([]model.Schedule, error) {
	return m.store.ListByCollaboration(model.CollaborationPending)
}
