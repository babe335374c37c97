package session

import (
	"sync"
	"testing"

	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/services"
	"github.com/stretchr/testify/assert"
)

func success() services.LoginResult {
	return services.LoginResult{
		Outcome:  services.LoginSuccess,
		Username: "alice",
		Role:     models.RoleAdmin,
		Roles:    models.NewRoleSet(models.RoleAdmin, models.RoleStudent),
	}
}

func TestSession_ZeroValueIsSignedOut(t *testing.T) {
	var s Session
	assert.False(t, s.LoggedIn())
	assert.Empty(t, s.Username())
	assert.True(t, s.Granted().IsEmpty())
	assert.False(t, s.Is(models.RoleAdmin))
}

func TestSession_BeginAndLogout(t *testing.T) {
	var s Session
	assert.True(t, s.Begin(success()))

	assert.True(t, s.LoggedIn())
	assert.Equal(t, "alice", s.Username())
	assert.Equal(t, models.RoleAdmin, s.Active())
	assert.True(t, s.Granted().Has(models.RoleStudent))
	assert.True(t, s.Is(models.RoleAdmin))
	assert.False(t, s.Is(models.RoleStudent))

	s.Logout()
	assert.False(t, s.LoggedIn())
	assert.Empty(t, s.Username())
	assert.Empty(t, s.Active())
	assert.True(t, s.Granted().IsEmpty())
}

func TestSession_BeginIgnoresFailedLogin(t *testing.T) {
	var s Session
	for _, o := range []services.LoginOutcome{
		services.LoginBadPassword,
		services.LoginOtpAccepted,
		services.LoginRoleNotGranted,
	} {
		res := success()
		res.Outcome = o
		assert.False(t, s.Begin(res), o.String())
		assert.False(t, s.LoggedIn())
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	var s Session
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Begin(success())
			s.Logout()
		}()
		go func() {
			defer wg.Done()
			_ = s.Is(models.RoleAdmin)
			_ = s.Username()
		}()
	}
	wg.Wait()
	assert.False(t, s.LoggedIn())
}
