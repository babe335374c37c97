package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/services"
)

var errPasswordsDiffer = errors.New("passwords do not match")

var outcomeMessages = map[services.LoginOutcome]string{
	services.LoginNoSuchUser:     "No such user.",
	services.LoginOtpExpired:     "The one-time password has expired. Ask an administrator for a new one.",
	services.LoginOtpMismatch:    "Wrong one-time password.",
	services.LoginRoleNotGranted: "That role is not granted to this account.",
	services.LoginBadPassword:    "Wrong password.",
}

// Register creates an account directly. Only administrators may create
// another administrator.
func (a *App) Register(ctx context.Context) error {
	username, err := a.ask("Enter username")
	if err != nil {
		return err
	}
	role, err := a.askRole("Enter role")
	if err != nil {
		return a.report(err)
	}
	if role == models.RoleAdmin && !a.isAdmin() {
		return a.report(fmt.Errorf("only administrators can register administrators: %w", common.ErrorRoleDenied))
	}
	password, err := a.askNewPassword()
	if err != nil {
		return a.report(err)
	}

	if err := a.svc.Register(ctx, username, password, role); err != nil {
		return a.report(err)
	}
	a.println("Success! Log in to complete the profile.")
	return nil
}

// Redeem turns an invite code into an account.
func (a *App) Redeem(ctx context.Context) error {
	code, err := a.ask("Enter invite code")
	if err != nil {
		return err
	}
	username, err := a.ask("Choose a username")
	if err != nil {
		return err
	}
	password, err := a.askNewPassword()
	if err != nil {
		return a.report(err)
	}

	if err := a.svc.RegisterViaInvite(ctx, code, username, password); err != nil {
		return a.report(err)
	}
	a.println("Success! Log in to complete the profile.")
	return nil
}

// Login authenticates and starts the session. An account that has not
// finished setup is asked for its profile; an accepted one-time password
// leads to choosing a new password.
func (a *App) Login(ctx context.Context) error {
	username, err := a.ask("Enter username")
	if err != nil {
		return err
	}
	secret, err := getPassword(a.out, "Enter password")
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(secret)

	role, err := a.askRole("Log in as")
	if err != nil {
		return a.report(err)
	}

	res, err := a.svc.Login(ctx, username, string(secret), role, a.now())
	if err != nil {
		return a.report(err)
	}

	switch res.Outcome {
	case services.LoginSuccess:
		a.session.Begin(res)
		a.println(fmt.Sprintf("Welcome, %s. Acting as %s.", res.Username, res.Role))
		return nil
	case services.LoginSetupIncomplete:
		return a.completeSetup(ctx, username, string(secret))
	case services.LoginOtpAccepted:
		return a.resetAfterOtp(ctx, username)
	default:
		a.println(outcomeMessages[res.Outcome])
		return res.Outcome.Err()
	}
}

func (a *App) completeSetup(ctx context.Context, username, secret string) error {
	ok, err := a.svc.VerifyCredential(ctx, username, secret)
	if err != nil {
		return a.report(err)
	}
	if !ok {
		a.println(outcomeMessages[services.LoginBadPassword])
		return common.ErrBadPassword
	}

	a.println("Your profile is not complete yet.")
	p, email, err := a.askProfile()
	if err != nil {
		return err
	}
	if err := a.svc.CompleteSetup(ctx, username, p, email); err != nil {
		return a.report(err)
	}
	a.println("Setup complete. Log in again to continue.")
	return nil
}

func (a *App) resetAfterOtp(ctx context.Context, username string) error {
	a.println("One-time password accepted. Choose a new password.")
	password, err := a.askNewPassword()
	if err != nil {
		return a.report(err)
	}
	if err := a.svc.ResetPasswordAfterOtp(ctx, username, password); err != nil {
		return a.report(err)
	}
	a.println("Password changed. Log in with the new password.")
	return nil
}

func (a *App) askProfile() (models.Profile, string, error) {
	var p models.Profile
	fields := []struct {
		prompt string
		dst    *string
	}{
		{"First name", &p.FirstName},
		{"Middle name (optional)", &p.MiddleName},
		{"Last name", &p.LastName},
		{"Preferred name (optional)", &p.PreferredName},
	}
	for _, f := range fields {
		v, err := a.ask(f.prompt)
		if err != nil {
			return models.Profile{}, "", err
		}
		*f.dst = v
	}
	email, err := a.ask("Email")
	if err != nil {
		return models.Profile{}, "", err
	}
	return p, email, nil
}

// Whoami shows the signed-in account.
func (a *App) Whoami(ctx context.Context) error {
	if !a.isLoggedIn() {
		a.println("Not logged in.")
		return nil
	}

	acc, err := a.svc.Account(ctx, a.session.Username())
	if err != nil {
		return a.report(err)
	}

	a.println("Username:", acc.Username)
	a.println("Acting as:", a.session.Active())
	a.println("Roles:", acc.Roles.String())
	if acc.Profile != nil {
		a.println("Name:", displayName(acc.Profile))
	}
	if acc.Email != "" {
		a.println("Email:", acc.Email)
	}
	return nil
}

// EditProfile replaces the profile of the signed-in account.
func (a *App) EditProfile(ctx context.Context) error {
	if !a.isLoggedIn() {
		a.println("Not logged in.")
		return nil
	}
	p, email, err := a.askProfile()
	if err != nil {
		return err
	}
	if err := a.svc.UpdateProfile(ctx, a.session.Username(), p, email); err != nil {
		return a.report(err)
	}
	a.println("Profile updated.")
	return nil
}

// Logout ends the session.
func (a *App) Logout(ctx context.Context) error {
	a.session.Logout()
	a.println("Logged out.")
	return nil
}

func displayName(p *models.Profile) string {
	parts := []string{p.FirstName}
	if p.MiddleName != "" {
		parts = append(parts, p.MiddleName)
	}
	parts = append(parts, p.LastName)
	name := strings.Join(parts, " ")
	if p.PreferredName != "" {
		name += fmt.Sprintf(" (%s)", p.PreferredName)
	}
	return name
}
