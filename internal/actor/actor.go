// Package actor defines actor identity, the roster, and call admission rules.
package actor

import (
	"fmt"
	"strings"
	"sync"
)

// Capability tiers. Higher tiers unlock larger iteration ceilings and
// riskier tools.
const (
	TierStandard   = 0
	TierSenior     = 1
	TierPrivileged = 2
)

// Actor identifies a simulated employee. Actors own no mutable state;
// everything mutable lives in the services keyed by actor id.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Tier        int    `json:"tier"`
}

// Status of an actor on the roster.
const (
	StatusActive     = "active"
	StatusSuspended  = "suspended"
	StatusTerminated = "terminated"
)

// Roster is the thread-safe registry of known actors.
type Roster struct {
	mu     sync.RWMutex
	actors map[string]Actor
	status map[string]string
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{
		actors: make(map[string]Actor),
		status: make(map[string]string),
	}
}

// Add registers or replaces an actor. New actors start active.
func (r *Roster) Add(a Actor) error {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return fmt.Errorf("actor id must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors[a.ID] = a
	if _, ok := r.status[a.ID]; !ok {
		r.status[a.ID] = StatusActive
	}
	return nil
}

// Get returns the actor with the given id.
func (r *Roster) Get(id string) (Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	return a, ok
}

// SetStatus updates an actor's roster status.
func (r *Roster) SetStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actors[id]; !ok {
		return fmt.Errorf("unknown actor: %s", id)
	}
	switch status {
	case StatusActive, StatusSuspended, StatusTerminated:
	default:
		return fmt.Errorf("invalid actor status: %s", status)
	}
	r.status[id] = status
	return nil
}

// Status returns the roster status for an actor, defaulting to active.
func (r *Roster) Status(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.status[id]; ok {
		return s
	}
	return StatusActive
}

// Available reports whether the actor exists and can accept work.
func (r *Roster) Available(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.actors[id]; !ok {
		return false
	}
	return r.status[id] == StatusActive
}

// List returns all registered actors.
func (r *Roster) List() []Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Actor, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a)
	}
	return out
}
