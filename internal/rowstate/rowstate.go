// Package rowstate defines the lifecycle of one row in the users table as
// the browser sees it.
//
// The table is the single source of truth for which actions a row accepts
// in which state. The page embeds it as JSON and rows.js refuses any event
// the table does not list, so an action such as "save" on a row that is
// not being edited cannot happen.
//
//	view ──edit──▶ edit ──save──▶ saving ──succeeded──▶ view
//	  │              │              └──────failed─────▶ edit
//	  │              └──cancel──▶ reverting ──succeeded──▶ view
//	  │                              └───────failed──────▶ edit
//	  └──delete──▶ deleting ──succeeded──▶ removed
//	                  └──────failed──────▶ view
//
//	new ──create──▶ creating ──succeeded──▶ loading ──succeeded/failed──▶ view
//	                   └───────failed──────▶ new
package rowstate

import (
	"errors"
	"fmt"
)

// State is where a row is in its lifecycle.
type State string

const (
	StateView      State = "view"
	StateEdit      State = "edit"
	StateNew       State = "new"
	StateSaving    State = "saving"
	StateReverting State = "reverting"
	StateCreating  State = "creating"
	StateLoading   State = "loading"
	StateDeleting  State = "deleting"
	StateRemoved   State = "removed"
)

// Event is something that happens to a row: a user action, or the outcome
// of the request that action started.
type Event string

const (
	EventEdit      Event = "edit"
	EventCancel    Event = "cancel"
	EventSave      Event = "save"
	EventCreate    Event = "create"
	EventDelete    Event = "delete"
	EventSucceeded Event = "succeeded"
	EventFailed    Event = "failed"
)

// ErrIllegalTransition is returned for any (state, event) pair the table
// does not list.
var ErrIllegalTransition = errors.New("illegal row transition")

// Table maps a state and an event to the next state.
type Table map[State]map[Event]State

var transitions = Table{
	StateView: {
		EventEdit:   StateEdit,
		EventDelete: StateDeleting,
	},
	StateEdit: {
		EventSave:   StateSaving,
		EventCancel: StateReverting,
	},
	StateNew: {
		EventCreate: StateCreating,
	},
	StateSaving: {
		EventSucceeded: StateView,
		EventFailed:    StateEdit,
	},
	StateReverting: {
		EventSucceeded: StateView,
		EventFailed:    StateEdit,
	},
	StateCreating: {
		EventSucceeded: StateLoading,
		EventFailed:    StateNew,
	},
	StateLoading: {
		EventSucceeded: StateView,
		EventFailed:    StateView,
	},
	StateDeleting: {
		EventSucceeded: StateRemoved,
		EventFailed:    StateView,
	},
	StateRemoved: {},
}

// Transitions returns a copy of the transition table.
func Transitions() Table {
	out := make(Table, len(transitions))
	for from, events := range transitions {
		next := make(map[Event]State, len(events))
		for ev, to := range events {
			next[ev] = to
		}
		out[from] = next
	}
	return out
}

// Next returns the state that follows from on ev.
func Next(from State, ev Event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return to, nil
}

// Initial is the state a row starts in: rows rendered by the server have
// an id and start in view; rows added from the form have none yet.
func Initial(id int64) State {
	if id > 0 {
		return StateView
	}
	return StateNew
}

// Row tracks one row's state.
type Row struct {
	ID    int64
	state State
}

func NewRow(id int64) *Row {
	return &Row{ID: id, state: Initial(id)}
}

func (r *Row) State() State {
	return r.state
}

// Fire applies ev. On an illegal event the state is left unchanged.
func (r *Row) Fire(ev Event) error {
	to, err := Next(r.state, ev)
	if err != nil {
		return err
	}
	r.state = to
	return nil
}
