// Package session tracks who is signed in to an interactive session.
package session

import (
	"sync"

	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/services"
)

// Session is the identity of the current actor. The zero value is a
// signed-out session and is ready to use.
type Session struct {
	mu       sync.RWMutex
	username string
	granted  models.RoleSet
	active   models.Role
}

// Begin signs in from a successful login. Any other outcome leaves the
// session untouched and reports false.
func (s *Session) Begin(res services.LoginResult) bool {
	if res.Outcome != services.LoginSuccess {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = res.Username
	s.granted = res.Roles
	s.active = res.Role
	return true
}

// Logout clears every field at once.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = ""
	s.granted = 0
	s.active = ""
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Granted() models.RoleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granted
}

func (s *Session) Active() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username != ""
}

// Is reports whether the session is signed in acting as role.
func (s *Session) Is(role models.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username != "" && s.active == role
}
