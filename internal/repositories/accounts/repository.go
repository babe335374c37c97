// Package accounts implements the storage contract for account records:
// atomic single-row reads and mutations keyed by username or invite code.
// Implementations report a missing row with common.ErrorNotFound and a
// uniqueness violation with common.ErrorConflict; every other failure is an
// operational error from the underlying store.
package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
)

// RoleOp selects the direction of MutateRoles.
type RoleOp int

const (
	RoleAdd RoleOp = iota
	RoleRemove
)

func (op RoleOp) apply(set models.RoleSet, role models.Role) models.RoleSet {
	if op == RoleRemove {
		return set.Remove(role)
	}
	return set.Add(role)
}

type Repository interface {
	Exists(ctx context.Context, username string) (bool, error)
	Find(ctx context.Context, username string) (*models.Account, error)
	Create(ctx context.Context, username string, credential []byte, roles models.RoleSet) (*models.Account, error)

	// SetProfile stores the profile and email and marks setup complete.
	SetProfile(ctx context.Context, username string, profile models.Profile, email string) error
	// UpdateProfile stores the profile and email without touching the setup flag.
	UpdateProfile(ctx context.Context, username string, profile models.Profile, email string) error

	// MutateRoles adds or removes one role and returns the resulting set.
	// Adding a present role or removing an absent one succeeds unchanged.
	MutateRoles(ctx context.Context, username string, op RoleOp, role models.Role) (models.RoleSet, error)

	SetCredential(ctx context.Context, username string, credential []byte) error
	SetOTP(ctx context.Context, username string, credential []byte, expiresAt time.Time) error
	ClearOTP(ctx context.Context, username string) error

	// Delete removes the account and anything that references it. Deleting
	// a missing account is not an error.
	Delete(ctx context.Context, username string) error

	// CreateOrUpdateInvite creates a pending invite for code or merges role
	// into an existing one. changed is false when the invite already granted
	// role.
	CreateOrUpdateInvite(ctx context.Context, code string, role models.Role) (changed bool, err error)
	FindInviteRoles(ctx context.Context, code string) (models.RoleSet, error)
	// RedeemInvite turns the pending invite into a full account and clears
	// the invite.
	RedeemInvite(ctx context.Context, code, username string, credential []byte, roles models.RoleSet) error

	ListAccounts(ctx context.Context) ([]models.Account, error)
	Count(ctx context.Context) (int, error)
}

// decodeRoles parses a persisted role list. A value that does not parse is
// damaged store data, not caller input, so it is reported as a storage
// failure.
func decodeRoles(s string) (models.RoleSet, error) {
	set, err := models.ParseRoleSet(s)
	if err != nil {
		return 0, fmt.Errorf("%w: stored roles %q: %v", common.ErrorStorageFailure, s, err)
	}
	return set, nil
}
