package fs

import (
	"sort"
	"time"

	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/logger"
	"github.com/omnifs/omnifs/internal/session"
)

// Login authenticates a user and issues a session id. A user with an
// active session gets the existing id back.
func (in *Instance) Login(username, password string) (string, error) {
	user, ok := in.users[username]
	if !ok {
		return "", domain.ErrNotFound
	}

	if domain.HashPassword(password) != user.PasswordHash {
		return "", domain.ErrPermission
	}

	user.LastLogin = time.Now().Unix()

	id, err := in.registry.Create(*user)
	if err != nil {
		return "", err
	}
	logger.Info("user %s logged in", username)
	return id, nil
}

// Logout closes a session. A closed or unknown id is an invalid session.
func (in *Instance) Logout(sessionID string) error {
	if !in.registry.Remove(sessionID) {
		return domain.ErrInvalidSession
	}
	return nil
}

// SessionInfo returns a copy of the session's state.
func (in *Instance) SessionInfo(sessionID string) (session.Session, error) {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return *sess, nil
}

// UserCreate adds a user. Admin only; duplicate usernames are rejected
// and a full user table reports no space.
func (in *Instance) UserCreate(sessionID, username, password string, role domain.UserRole) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}
	if sess.User.Role != domain.RoleAdmin {
		return domain.ErrPermission
	}

	if _, exists := in.users[username]; exists {
		return domain.ErrExists
	}

	user := domain.UserInfo{
		Username:     username,
		PasswordHash: domain.HashPassword(password),
		Role:         role,
		IsActive:     true,
		CreatedTime:  time.Now().Unix(),
	}
	in.users[username] = &user

	header := in.cont.Header()
	for i := uint32(0); i < header.MaxUsers; i++ {
		existing, err := in.cont.ReadUser(i)
		if err != nil {
			return err
		}
		if !existing.Occupied() {
			if err := in.cont.WriteUser(i, &user); err != nil {
				return err
			}
			if err := in.cont.Flush(); err != nil {
				return err
			}
			logger.Info("user created: %s (%s)", username, role)
			return nil
		}
	}

	delete(in.users, username)
	return domain.ErrNoSpace
}

// UserDelete tombstones a user slot. Admin only; self-deletion is
// refused.
func (in *Instance) UserDelete(sessionID, username string) error {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return err
	}
	if sess.User.Role != domain.RoleAdmin {
		return domain.ErrPermission
	}
	if username == sess.User.Username {
		return domain.ErrInvalidOperation
	}

	if _, exists := in.users[username]; !exists {
		return domain.ErrNotFound
	}
	delete(in.users, username)

	header := in.cont.Header()
	for i := uint32(0); i < header.MaxUsers; i++ {
		existing, err := in.cont.ReadUser(i)
		if err != nil {
			return err
		}
		if existing.Username == username {
			existing.IsActive = false
			if err := in.cont.WriteUser(i, &existing); err != nil {
				return err
			}
			if err := in.cont.Flush(); err != nil {
				return err
			}
			logger.Info("user deleted: %s", username)
			return nil
		}
	}

	return nil
}

// UserList returns all active users in lexicographic order. Admin only.
func (in *Instance) UserList(sessionID string) ([]domain.UserInfo, error) {
	sess, err := in.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.User.Role != domain.RoleAdmin {
		return nil, domain.ErrPermission
	}

	out := make([]domain.UserInfo, 0, len(in.users))
	for _, u := range in.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out, nil
}
