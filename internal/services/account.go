// Package services implements the account lifecycle: registration, invite
// redemption, login, one-time passwords and resets, role grants and profile
// setup. Every entry point validates its input first and then runs as one
// unit of work on the store, so a rejected or failed call leaves no partial
// state behind.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/validate"
)

// Hasher turns secrets into digests and checks them. credential.Codec is the
// production implementation.
type Hasher interface {
	Hash(plaintext string) []byte
	Verify(plaintext string, digest []byte) bool
}

type AccountService struct {
	store  repomanager.RepositoryManager
	codec  Hasher
	logger logging.Logger
}

func NewAccountService(store repomanager.RepositoryManager, codec Hasher, logger logging.Logger) *AccountService {
	return &AccountService{store: store, codec: codec, logger: logger.With("component", "accounts")}
}

// finish converts err to the public taxonomy and logs the call.
func (s *AccountService) finish(ctx context.Context, op string, err error, args ...any) error {
	err = common.StorageError(op, err)
	switch {
	case err == nil:
		s.logger.Info(ctx, op, args...)
	case errors.Is(err, common.ErrorStorageFailure):
		s.logger.Error(ctx, op+" failed", append(args, "error", err)...)
	default:
		s.logger.Warn(ctx, op+" rejected", append(args, "error", err)...)
	}
	return err
}

func userMissing(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrNoSuchUser
	}
	return err
}

func inviteMissing(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrInvalidInvite
	}
	return err
}

func userTaken(err error) error {
	if errors.Is(err, common.ErrorConflict) {
		return common.ErrUserExists
	}
	return err
}

func checkUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", common.ErrEmptyUsername
	}
	return username, nil
}

func checkPassword(password string) error {
	if reason := validate.PasswordStrength(password); reason != "" {
		return fmt.Errorf("%s: %w", reason, common.ErrWeakPassword)
	}
	return nil
}

func checkRole(role models.Role) (models.Role, error) {
	return models.ParseRole(string(role))
}

// ParseExpiry accepts an MM/DD/YYYY string that is both well formed and a
// real calendar date. The result is midnight UTC of that day.
func ParseExpiry(s string) (time.Time, error) {
	if err := validate.CheckDate(s); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(validate.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a calendar date: %w", s, common.ErrBadDate)
	}
	return t, nil
}

// Register creates a full account holding role.
func (s *AccountService) Register(ctx context.Context, username, password string, role models.Role) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if role, err = checkRole(role); err != nil {
		return err
	}
	if err := checkPassword(password); err != nil {
		return err
	}

	digest := s.codec.Hash(password)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		exists, err := repo.Exists(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrUserExists
		}
		_, err = repo.Create(ctx, username, digest, models.NewRoleSet(role))
		return userTaken(err)
	})
	return s.finish(ctx, "register", err, "username", username, "role", role)
}

// RegisterViaInvite redeems a pending invite into an account named username.
// The account receives every role the invite grants.
func (s *AccountService) RegisterViaInvite(ctx context.Context, code, username, password string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return common.ErrEmptyInvite
	}
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if err := checkPassword(password); err != nil {
		return err
	}

	digest := s.codec.Hash(password)
	var roles models.RoleSet
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var err error
		roles, err = repo.FindInviteRoles(ctx, code)
		if err != nil {
			return inviteMissing(err)
		}
		err = repo.RedeemInvite(ctx, code, username, digest, roles)
		return userTaken(inviteMissing(err))
	})
	return s.finish(ctx, "register_via_invite", err, "username", username, "roles", roles.String())
}

// Login checks secret against the stored credential and reports the first
// rule that fails. The error return is reserved for storage failures.
func (s *AccountService) Login(ctx context.Context, username, secret string, requested models.Role, now time.Time) (LoginResult, error) {
	username = strings.TrimSpace(username)
	res := LoginResult{Outcome: LoginNoSuchUser}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		a, err := repo.Find(ctx, username)
		if errors.Is(err, common.ErrorNotFound) {
			res = LoginResult{Outcome: LoginNoSuchUser}
			return nil
		}
		if err != nil {
			return err
		}
		res = s.evaluate(a, secret, requested, now)
		return nil
	})
	if err != nil {
		return LoginResult{}, s.finish(ctx, "login", err, "username", username)
	}

	s.logger.Info(ctx, "login", "username", username, "role", requested, "outcome", res.Outcome.String())
	return res, nil
}

func (s *AccountService) evaluate(a *models.Account, secret string, requested models.Role, now time.Time) LoginResult {
	if len(a.Credential) == 0 {
		return LoginResult{Outcome: LoginNoSuchUser}
	}
	if !a.SetupComplete {
		return LoginResult{Outcome: LoginSetupIncomplete}
	}

	if a.OTPActive {
		// the expiry day itself is still valid
		if models.CivilDate(now).After(a.OTPExpiresAt) {
			return LoginResult{Outcome: LoginOtpExpired}
		}
		if !s.codec.Verify(secret, a.Credential) {
			return LoginResult{Outcome: LoginOtpMismatch}
		}
		return LoginResult{Outcome: LoginOtpAccepted, Username: a.Username, Roles: a.Roles}
	}

	if !s.codec.Verify(secret, a.Credential) {
		return LoginResult{Outcome: LoginBadPassword}
	}
	if !a.Roles.Has(requested) {
		return LoginResult{Outcome: LoginRoleNotGranted, Username: a.Username, Roles: a.Roles}
	}
	return LoginResult{Outcome: LoginSuccess, Username: a.Username, Role: requested, Roles: a.Roles}
}

// VerifyCredential reports whether secret matches the stored credential,
// ignoring setup state, OTP expiry and roles. A missing account yields false.
func (s *AccountService) VerifyCredential(ctx context.Context, username, secret string) (bool, error) {
	username = strings.TrimSpace(username)
	var ok bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		a, err := repo.Find(ctx, username)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = len(a.Credential) > 0 && s.codec.Verify(secret, a.Credential)
		return nil
	})
	if err != nil {
		return false, s.finish(ctx, "verify_credential", err, "username", username)
	}
	return ok, nil
}

// ResetPasswordAfterOtp replaces the credential and leaves OTP mode in one
// step.
func (s *AccountService) ResetPasswordAfterOtp(ctx context.Context, username, newPassword string) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	digest := s.codec.Hash(newPassword)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		if err := repo.SetCredential(ctx, username, digest); err != nil {
			return userMissing(err)
		}
		return userMissing(repo.ClearOTP(ctx, username))
	})
	return s.finish(ctx, "reset_password", err, "username", username)
}

// IssueOneTimePassword puts the account into OTP mode until the end of the
// day given by expiresAt (MM/DD/YYYY).
func (s *AccountService) IssueOneTimePassword(ctx context.Context, username, otp, expiresAt string) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if otp == "" {
		return common.ErrEmptySecret
	}
	expiry, err := ParseExpiry(expiresAt)
	if err != nil {
		return err
	}

	digest := s.codec.Hash(otp)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		return userMissing(repo.SetOTP(ctx, username, digest, expiry))
	})
	return s.finish(ctx, "issue_otp", err, "username", username, "expires_at", expiry.Format(models.DateLayout))
}

func (s *AccountService) mutateRole(ctx context.Context, op string, username string, dir accounts.RoleOp, role models.Role) (models.RoleSet, error) {
	username, err := checkUsername(username)
	if err != nil {
		return 0, err
	}
	if role, err = checkRole(role); err != nil {
		return 0, err
	}

	var roles models.RoleSet
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var err error
		roles, err = repo.MutateRoles(ctx, username, dir, role)
		return userMissing(err)
	})
	if err = s.finish(ctx, op, err, "username", username, "role", role); err != nil {
		return 0, err
	}
	return roles, nil
}

// GrantRole adds role to the account and returns the resulting set. Granting
// a role the account already holds succeeds without change.
func (s *AccountService) GrantRole(ctx context.Context, username string, role models.Role) (models.RoleSet, error) {
	return s.mutateRole(ctx, "grant_role", username, accounts.RoleAdd, role)
}

// RevokeRole removes role from the account and returns the resulting set.
func (s *AccountService) RevokeRole(ctx context.Context, username string, role models.Role) (models.RoleSet, error) {
	return s.mutateRole(ctx, "revoke_role", username, accounts.RoleRemove, role)
}

// CreateInvite creates a pending invite for code, or adds role to an
// existing one. It fails with ErrInviteExists when the invite already
// grants role.
func (s *AccountService) CreateInvite(ctx context.Context, code string, role models.Role) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return common.ErrEmptyInvite
	}
	role, err := checkRole(role)
	if err != nil {
		return err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		changed, err := repo.CreateOrUpdateInvite(ctx, code, role)
		if err != nil {
			return err
		}
		if !changed {
			return common.ErrInviteExists
		}
		return nil
	})
	return s.finish(ctx, "create_invite", err, "role", role)
}

// DeleteAccount removes the account. Deleting a missing account succeeds.
func (s *AccountService) DeleteAccount(ctx context.Context, username string) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		return repo.Delete(ctx, username)
	})
	return s.finish(ctx, "delete_account", err, "username", username)
}

// CompleteSetup stores the profile and email and unlocks login.
func (s *AccountService) CompleteSetup(ctx context.Context, username string, p models.Profile, email string) error {
	return s.saveProfile(ctx, "complete_setup", username, p, email, true)
}

// UpdateProfile edits the details of an account without changing its setup
// state.
func (s *AccountService) UpdateProfile(ctx context.Context, username string, p models.Profile, email string) error {
	return s.saveProfile(ctx, "update_profile", username, p, email, false)
}

func (s *AccountService) saveProfile(ctx context.Context, op, username string, p models.Profile, email string, setup bool) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if err := validate.Profile(p, email); err != nil {
		return err
	}
	p = validate.NormalizeProfile(p)
	email = strings.TrimSpace(email)

	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		if setup {
			return userMissing(repo.SetProfile(ctx, username, p, email))
		}
		return userMissing(repo.UpdateProfile(ctx, username, p, email))
	})
	return s.finish(ctx, op, err, "username", username)
}

// Account returns the stored account without its credential digest.
func (s *AccountService) Account(ctx context.Context, username string) (*models.Account, error) {
	username, err := checkUsername(username)
	if err != nil {
		return nil, err
	}

	var a *models.Account
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var err error
		a, err = repo.Find(ctx, username)
		return userMissing(err)
	})
	if err != nil {
		return nil, s.finish(ctx, "get_account", err, "username", username)
	}
	a.Credential = nil
	s.logger.Debug(ctx, "get_account", "username", username)
	return a, nil
}

// Roles returns the roles held by username.
func (s *AccountService) Roles(ctx context.Context, username string) (models.RoleSet, error) {
	a, err := s.Account(ctx, username)
	if err != nil {
		return 0, err
	}
	return a.Roles, nil
}

// ListAccounts returns every account, pending invites included, oldest
// first. Credential digests are stripped.
func (s *AccountService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var list []models.Account
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var err error
		list, err = repo.ListAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, s.finish(ctx, "list_accounts", err)
	}
	for i := range list {
		list[i].Credential = nil
	}
	s.logger.Debug(ctx, "list_accounts", "count", len(list))
	return list, nil
}

// NeedsBootstrap reports whether the store holds no accounts or invites.
func (s *AccountService) NeedsBootstrap(ctx context.Context) (bool, error) {
	var n int
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var err error
		n, err = repo.Count(ctx)
		return err
	})
	if err != nil {
		return false, s.finish(ctx, "needs_bootstrap", err)
	}
	return n == 0, nil
}

// BootstrapAdmin creates the first account, holding the Admin role. It
// fails with ErrBootstrapDone once any account or invite exists.
func (s *AccountService) BootstrapAdmin(ctx context.Context, username, password string) error {
	username, err := checkUsername(username)
	if err != nil {
		return err
	}
	if err := checkPassword(password); err != nil {
		return err
	}

	digest := s.codec.Hash(password)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		n, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return common.ErrBootstrapDone
		}
		_, err = repo.Create(ctx, username, digest, models.NewRoleSet(models.RoleAdmin))
		return userTaken(err)
	})
	return s.finish(ctx, "bootstrap_admin", err, "username", username)
}
