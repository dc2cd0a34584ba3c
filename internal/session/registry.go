// Package session issues and tracks per-connection sessions. Sessions
// are in-memory only and never outlive the mount that owns the registry.
package session

import (
	"strconv"
	"time"

	"github.com/omnifs/omnifs/internal/domain"
)

// Session is one authenticated connection.
type Session struct {
	ID           string
	User         domain.UserInfo
	CreatedAt    int64
	LastActivity int64
}

type slot struct {
	sess   Session
	active bool
}

// Registry is a fixed-size session table sized by max_connections. Its
// lifecycle is owned by the mount: created on init, cleared on shutdown.
type Registry struct {
	slots []slot
	count int
}

// NewRegistry allocates a table of maxSessions slots.
func NewRegistry(maxSessions uint32) *Registry {
	return &Registry{slots: make([]slot, maxSessions)}
}

func (r *Registry) findIndex(id string) int {
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].sess.ID == id {
			return i
		}
	}
	return -1
}

// Create issues a session for the user. Login is idempotent per user: if
// an active session already exists for the username its id is returned
// instead of a new one. A full table reports no space.
func (r *Registry) Create(user domain.UserInfo) (string, error) {
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].sess.User.Username == user.Username {
			return r.slots[i].sess.ID, nil
		}
	}

	now := time.Now().Unix()
	id := user.Username + "_" + strconv.FormatInt(now, 10)

	for i := range r.slots {
		if !r.slots[i].active {
			r.slots[i] = slot{
				sess: Session{
					ID:           id,
					User:         user,
					CreatedAt:    now,
					LastActivity: now,
				},
				active: true,
			}
			r.count++
			return id, nil
		}
	}

	return "", domain.ErrNoSpace
}

// Get resolves a session id and stamps its last activity. Nil when the
// id is unknown or the session was closed.
func (r *Registry) Get(id string) *Session {
	idx := r.findIndex(id)
	if idx == -1 {
		return nil
	}
	r.slots[idx].sess.LastActivity = time.Now().Unix()
	return &r.slots[idx].sess
}

// Remove closes a session. Closed sessions do not resurrect.
func (r *Registry) Remove(id string) bool {
	idx := r.findIndex(id)
	if idx == -1 {
		return false
	}
	r.slots[idx].active = false
	r.count--
	return true
}

// ClearAll closes every session.
func (r *Registry) ClearAll() {
	for i := range r.slots {
		r.slots[i].active = false
	}
	r.count = 0
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	return r.count
}

// Max returns the table capacity.
func (r *Registry) Max() int {
	return len(r.slots)
}

// Active returns a snapshot of every live session.
func (r *Registry) Active() []Session {
	var out []Session
	for i := range r.slots {
		if r.slots[i].active {
			out = append(out, r.slots[i].sess)
		}
	}
	return out
}
