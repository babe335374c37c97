package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/credential"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodPassword = "Abcdef1!"

var alice = models.Profile{FirstName: "Alice", LastName: "Liddell"}

func newService(t *testing.T) *AccountService {
	t.Helper()
	return newServiceAt(t, filepath.Join(t.TempDir(), "accounts.db"))
}

func newServiceAt(t *testing.T, path string) *AccountService {
	t.Helper()
	ctx := context.Background()
	store, err := repomanager.NewSQLiteRepositoryManager(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.RunMigrations(ctx))

	codec, err := credential.NewCodec(credential.AlgorithmSHA256, nil)
	require.NoError(t, err)
	return NewAccountService(store, codec, logging.Nop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestScenario_RegisterSetupLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	today := day(2024, 5, 1)

	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	res, err := s.Login(ctx, "alice", goodPassword, models.RoleStudent, today)
	require.NoError(t, err)
	assert.Equal(t, LoginSetupIncomplete, res.Outcome)

	require.NoError(t, s.CompleteSetup(ctx, "alice", alice, "alice@example.com"))

	res, err = s.Login(ctx, "alice", goodPassword, models.RoleStudent, today)
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, res.Outcome)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, models.RoleStudent, res.Role)
	assert.Equal(t, models.NewRoleSet(models.RoleStudent), res.Roles)
}

func TestScenario_InviteIsSingleUse(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.CreateInvite(ctx, "XYZ123", models.RoleInstructor))
	require.NoError(t, s.RegisterViaInvite(ctx, "XYZ123", "bob", "Passw0rd!"))

	err := s.RegisterViaInvite(ctx, "XYZ123", "carol", "Passw0rd!")
	assert.ErrorIs(t, err, common.ErrInvalidInvite)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	roles, err := s.Roles(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.NewRoleSet(models.RoleInstructor), roles)
}

func TestRegister_Errors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	assert.ErrorIs(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent), common.ErrUserExists)
	assert.ErrorIs(t, s.Register(ctx, "  ", goodPassword, models.RoleStudent), common.ErrEmptyUsername)
	assert.ErrorIs(t, s.Register(ctx, "bob", "short", models.RoleStudent), common.ErrWeakPassword)
	assert.ErrorIs(t, s.Register(ctx, "bob", goodPassword, "Janitor"), common.ErrInvalidRole)
}

func TestRegisterViaInvite_MergedRolesAndTakenUsername(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))
	require.NoError(t, s.CreateInvite(ctx, "CODE", models.RoleStudent))
	require.NoError(t, s.CreateInvite(ctx, "CODE", models.RoleInstructor))
	assert.ErrorIs(t, s.CreateInvite(ctx, "CODE", models.RoleStudent), common.ErrInviteExists)

	err := s.RegisterViaInvite(ctx, "CODE", "alice", goodPassword)
	assert.ErrorIs(t, err, common.ErrUserExists)

	require.NoError(t, s.RegisterViaInvite(ctx, " CODE ", "dave", goodPassword))
	roles, err := s.Roles(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, models.NewRoleSet(models.RoleStudent, models.RoleInstructor), roles)
}

func TestLogin_Outcomes(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	today := day(2024, 5, 1)

	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))
	require.NoError(t, s.CompleteSetup(ctx, "alice", alice, "alice@example.com"))

	cases := []struct {
		name     string
		username string
		secret   string
		role     models.Role
		want     LoginOutcome
	}{
		{"unknown user", "nobody", goodPassword, models.RoleStudent, LoginNoSuchUser},
		{"wrong password", "alice", "Wrong1!xx", models.RoleStudent, LoginBadPassword},
		{"role not granted", "alice", goodPassword, models.RoleAdmin, LoginRoleNotGranted},
		{"bad password wins over role", "alice", "Wrong1!xx", models.RoleAdmin, LoginBadPassword},
		{"success", "alice", goodPassword, models.RoleStudent, LoginSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Login(ctx, tc.username, tc.secret, tc.role, today)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Outcome)
		})
	}
}

func TestLogin_OtpFlow(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))
	require.NoError(t, s.CompleteSetup(ctx, "alice", alice, "alice@example.com"))
	require.NoError(t, s.IssueOneTimePassword(ctx, "alice", "temp-1234", "03/01/2024"))

	res, err := s.Login(ctx, "alice", goodPassword, models.RoleStudent, day(2024, 2, 28))
	require.NoError(t, err)
	assert.Equal(t, LoginOtpMismatch, res.Outcome, "old password no longer works")

	res, err = s.Login(ctx, "alice", "temp-1234", models.RoleStudent, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, LoginOtpAccepted, res.Outcome, "expiry day is inclusive")

	res, err = s.Login(ctx, "alice", "temp-1234", models.RoleStudent, day(2024, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, LoginOtpExpired, res.Outcome)

	// still in OTP mode until reset
	a, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.OTPActive)

	require.NoError(t, s.ResetPasswordAfterOtp(ctx, "alice", "N3wPass!word"))

	a, err = s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, a.OTPActive)
	assert.Nil(t, a.Credential)

	res, err = s.Login(ctx, "alice", "N3wPass!word", models.RoleStudent, day(2024, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, res.Outcome)
}

func TestIssueOneTimePassword_Validation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	assert.ErrorIs(t, s.IssueOneTimePassword(ctx, "alice", "otp", "2/9/2024"), common.ErrBadDate)
	assert.ErrorIs(t, s.IssueOneTimePassword(ctx, "alice", "otp", "02/29/20244"), common.ErrBadDate)
	// lexically fine, not a calendar date
	assert.ErrorIs(t, s.IssueOneTimePassword(ctx, "alice", "otp", "13/99/2099"), common.ErrBadDate)
	assert.ErrorIs(t, s.IssueOneTimePassword(ctx, "alice", "", "02/29/2024"), common.ErrEmptySecret)
	assert.ErrorIs(t, s.IssueOneTimePassword(ctx, "ghost", "otp", "02/29/2024"), common.ErrNoSuchUser)

	a, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, a.OTPActive)

	require.NoError(t, s.IssueOneTimePassword(ctx, "alice", "otp", "02/29/2024"))
	a, err = s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.OTPActive)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), a.OTPExpiresAt)
}

func TestResetPasswordAfterOtp_Errors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.ResetPasswordAfterOtp(ctx, "ghost", goodPassword), common.ErrNoSuchUser)
	assert.ErrorIs(t, s.ResetPasswordAfterOtp(ctx, "ghost", "weak"), common.ErrWeakPassword)
}

func TestRoles_GrantRevokeIdempotent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	roles, err := s.GrantRole(ctx, "alice", models.RoleInstructor)
	require.NoError(t, err)
	again, err := s.GrantRole(ctx, "alice", models.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, roles, again)
	assert.Equal(t, models.NewRoleSet(models.RoleStudent, models.RoleInstructor), again)

	roles, err = s.RevokeRole(ctx, "alice", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, again, roles)

	roles, err = s.RevokeRole(ctx, "alice", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, models.NewRoleSet(models.RoleInstructor), roles)

	_, err = s.GrantRole(ctx, "ghost", models.RoleAdmin)
	assert.ErrorIs(t, err, common.ErrNoSuchUser)
	_, err = s.RevokeRole(ctx, "alice", "Janitor")
	assert.ErrorIs(t, err, common.ErrInvalidRole)
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	require.NoError(t, s.DeleteAccount(ctx, "alice"))
	require.NoError(t, s.DeleteAccount(ctx, "alice"))

	_, err := s.Account(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrNoSuchUser)
}

func TestProfile_SetupAndUpdate(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	err := s.CompleteSetup(ctx, "alice", alice, "not-an-email")
	assert.ErrorIs(t, err, common.ErrInvalidEmail)
	err = s.CompleteSetup(ctx, "alice", models.Profile{FirstName: "Alice"}, "alice@example.com")
	assert.ErrorIs(t, err, common.ErrorInvalidInput)
	assert.ErrorIs(t, s.CompleteSetup(ctx, "ghost", alice, "a@b.c"), common.ErrNoSuchUser)

	require.NoError(t, s.UpdateProfile(ctx, "alice", models.Profile{FirstName: " Al ", LastName: "L"}, "al@example.com"))
	a, err := s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, a.SetupComplete, "update does not complete setup")
	require.NotNil(t, a.Profile)
	assert.Equal(t, "Al", a.Profile.FirstName)

	require.NoError(t, s.CompleteSetup(ctx, "alice", alice, "alice@example.com"))
	a, err = s.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.SetupComplete)
	assert.Equal(t, "alice@example.com", a.Email)
}

func TestBootstrapAdmin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	need, err := s.NeedsBootstrap(ctx)
	require.NoError(t, err)
	assert.True(t, need)

	require.NoError(t, s.BootstrapAdmin(ctx, "root", goodPassword))
	assert.ErrorIs(t, s.BootstrapAdmin(ctx, "root2", goodPassword), common.ErrBootstrapDone)

	need, err = s.NeedsBootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, need)

	roles, err := s.Roles(ctx, "root")
	require.NoError(t, err)
	assert.True(t, roles.Has(models.RoleAdmin))
}

func TestListAccounts_IncludesInvites(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))
	require.NoError(t, s.CreateInvite(ctx, "INV", models.RoleInstructor))

	list, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var placeholders int
	for _, a := range list {
		assert.Nil(t, a.Credential)
		if a.IsPlaceholder() {
			placeholders++
			assert.Equal(t, "INV", a.Invite.Code)
		}
	}
	assert.Equal(t, 1, placeholders)
}

func TestVerifyCredential(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))

	ok, err := s.VerifyCredential(ctx, "alice", goodPassword)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifyCredential(ctx, "alice", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.VerifyCredential(ctx, "ghost", goodPassword)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingStore struct {
	calls int
	err   error
}

func (f *failingStore) RunMigrations(context.Context) error { return nil }
func (f *failingStore) Close() error                        { return nil }
func (f *failingStore) WithinTx(ctx context.Context, fn repomanager.TxFunc) error {
	f.calls++
	return f.err
}

func TestStorageErrorsSurfaceAsStorageFailure(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	codec, err := credential.NewCodec(credential.AlgorithmSHA256, nil)
	require.NoError(t, err)
	s := NewAccountService(store, codec, logging.Nop())
	ctx := context.Background()

	err = s.Register(ctx, "alice", goodPassword, models.RoleStudent)
	assert.ErrorIs(t, err, common.ErrorStorageFailure)

	_, err = s.Login(ctx, "alice", goodPassword, models.RoleStudent, time.Now())
	assert.ErrorIs(t, err, common.ErrorStorageFailure)

	_, err = s.ListAccounts(ctx)
	assert.ErrorIs(t, err, common.ErrorStorageFailure)
}

func TestDamagedStoredRolesSurfaceAsStorageFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	s := newServiceAt(t, path)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "alice", goodPassword, models.RoleStudent))
	require.NoError(t, s.CreateInvite(ctx, "CODE", models.RoleStudent))

	db, err := sql.Open("sqlite", repomanager.SQLiteDSN(path))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, `UPDATE accounts SET roles = 'SubAdmin' WHERE username = 'alice'`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE accounts SET invite_roles = 'SubAdmin' WHERE invite_code = 'CODE'`)
	require.NoError(t, err)

	_, err = s.Login(ctx, "alice", goodPassword, models.RoleStudent, time.Now())
	assert.ErrorIs(t, err, common.ErrorStorageFailure)
	assert.NotErrorIs(t, err, common.ErrorInvalidInput)

	_, err = s.GrantRole(ctx, "alice", models.RoleAdmin)
	assert.ErrorIs(t, err, common.ErrorStorageFailure)
	assert.NotErrorIs(t, err, common.ErrorInvalidInput)

	err = s.RegisterViaInvite(ctx, "CODE", "bob", goodPassword)
	assert.ErrorIs(t, err, common.ErrorStorageFailure)
	assert.NotErrorIs(t, err, common.ErrorInvalidInput)

	_, err = s.ListAccounts(ctx)
	assert.ErrorIs(t, err, common.ErrorStorageFailure)
}

func TestValidationPrecedesStorage(t *testing.T) {
	store := &failingStore{}
	codec, err := credential.NewCodec(credential.AlgorithmSHA256, nil)
	require.NoError(t, err)
	s := NewAccountService(store, codec, logging.Nop())
	ctx := context.Background()

	_ = s.Register(ctx, "alice", "weak", models.RoleStudent)
	_ = s.RegisterViaInvite(ctx, "", "bob", goodPassword)
	_ = s.IssueOneTimePassword(ctx, "alice", "otp", "99/99/9999")
	_ = s.ResetPasswordAfterOtp(ctx, "alice", "weak")
	_ = s.CompleteSetup(ctx, "alice", models.Profile{}, "")
	_, _ = s.GrantRole(ctx, "alice", "Janitor")
	_ = s.CreateInvite(ctx, "CODE", "Janitor")
	_ = s.BootstrapAdmin(ctx, "", goodPassword)

	assert.Zero(t, store.calls)
}

func TestLoginOutcome_Err(t *testing.T) {
	assert.NoError(t, LoginSuccess.Err())
	assert.NoError(t, LoginOtpAccepted.Err())
	assert.ErrorIs(t, LoginNoSuchUser.Err(), common.ErrorNotFound)
	assert.ErrorIs(t, LoginOtpExpired.Err(), common.ErrorExpired)
	assert.ErrorIs(t, LoginOtpMismatch.Err(), common.ErrorInvalidCredential)
	assert.ErrorIs(t, LoginBadPassword.Err(), common.ErrorInvalidCredential)
	assert.ErrorIs(t, LoginRoleNotGranted.Err(), common.ErrorRoleDenied)
	assert.Equal(t, "otp_accepted", LoginOtpAccepted.String())
	assert.Equal(t, "unknown", LoginOutcome(0).String())
}
