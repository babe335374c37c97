package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/validate"
)

// inviteCodeBytes and otpBytes size generated secrets; the printed values
// are twice as long.
const (
	inviteCodeBytes = 4
	otpBytes        = 5
)

// Invite creates an invite code, or adds a role to an existing one. An
// empty code generates a fresh one.
func (a *App) Invite(ctx context.Context) error {
	code, err := a.ask("Invite code (empty to generate)")
	if err != nil {
		return err
	}
	if code == "" {
		if code, err = common.MakeInviteCode(inviteCodeBytes); err != nil {
			return a.report(err)
		}
	}
	role, err := a.askRole("Role offered")
	if err != nil {
		return a.report(err)
	}

	if err := a.svc.CreateInvite(ctx, code, role); err != nil {
		return a.report(err)
	}
	a.println("Invite code:", code)
	return nil
}

// IssueOTP puts an account into one-time password mode.
func (a *App) IssueOTP(ctx context.Context) error {
	username, err := a.ask("Username")
	if err != nil {
		return err
	}
	otp, err := a.ask("One-time password (empty to generate)")
	if err != nil {
		return err
	}
	generated := otp == ""
	if generated {
		if otp, err = common.MakeRandHexString(otpBytes); err != nil {
			return a.report(err)
		}
	}
	expires, err := a.ask("Valid through (MM/DD/YYYY)")
	if err != nil {
		return err
	}

	if err := a.svc.IssueOneTimePassword(ctx, username, otp, expires); err != nil {
		return a.report(err)
	}
	if generated {
		a.println("One-time password:", otp)
	}
	a.println(fmt.Sprintf("%s must log in with the one-time password by %s.", username, expires))
	return nil
}

// Grant adds a role to an account.
func (a *App) Grant(ctx context.Context) error {
	return a.changeRole(ctx, "Grant role", a.svc.GrantRole)
}

// Revoke removes a role from an account.
func (a *App) Revoke(ctx context.Context) error {
	return a.changeRole(ctx, "Revoke role", a.svc.RevokeRole)
}

func (a *App) changeRole(ctx context.Context, prompt string, apply func(context.Context, string, models.Role) (models.RoleSet, error)) error {
	username, err := a.ask("Username")
	if err != nil {
		return err
	}
	role, err := a.askRole(prompt)
	if err != nil {
		return a.report(err)
	}

	roles, err := apply(ctx, username, role)
	if err != nil {
		return a.report(err)
	}
	a.println(fmt.Sprintf("%s now holds: %s", username, rolesOrNone(roles)))
	return nil
}

// Delete removes an account after confirmation. Deleting the signed-in
// account also ends the session.
func (a *App) Delete(ctx context.Context) error {
	username, err := a.ask("Username to delete")
	if err != nil {
		return err
	}
	confirm, err := a.ask(fmt.Sprintf("Type %q to confirm", username))
	if err != nil {
		return err
	}
	if confirm != username {
		a.println("Cancelled.")
		return nil
	}

	if err := a.svc.DeleteAccount(ctx, username); err != nil {
		return a.report(err)
	}
	a.println("Deleted.")
	if username == a.session.Username() {
		return a.Logout(ctx)
	}
	return nil
}

// List prints every account and pending invite.
func (a *App) List(ctx context.Context) error {
	list, err := a.svc.ListAccounts(ctx)
	if err != nil {
		return a.report(err)
	}
	if len(list) == 0 {
		a.println("No accounts.")
		return nil
	}

	for _, acc := range list {
		a.println(formatAccount(&acc))
	}
	return nil
}

func formatAccount(acc *models.Account) string {
	if acc.IsPlaceholder() {
		return fmt.Sprintf("invite %s  roles: %s", acc.Invite.Code, rolesOrNone(acc.Invite.Roles))
	}

	var flags []string
	if !acc.SetupComplete {
		flags = append(flags, "setup pending")
	}
	if acc.OTPActive {
		flags = append(flags, "otp until "+acc.OTPExpiresAt.Format(validate.DateLayout))
	}

	line := fmt.Sprintf("%s  roles: %s", acc.Username, rolesOrNone(acc.Roles))
	if acc.Profile != nil {
		line += "  name: " + displayName(acc.Profile)
	}
	if len(flags) > 0 {
		line += "  [" + strings.Join(flags, ", ") + "]"
	}
	return line
}

func rolesOrNone(s models.RoleSet) string {
	if s.IsEmpty() {
		return "none"
	}
	return s.String()
}
