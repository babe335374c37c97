package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/config"
	"github.com/dmitrijs2005/accountkeeper/internal/credential"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/dmitrijs2005/accountkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/services"
	"github.com/dmitrijs2005/accountkeeper/internal/session"
	"github.com/dmitrijs2005/accountkeeper/internal/validate"
)

// accountService is the part of services.AccountService the console uses.
type accountService interface {
	Register(ctx context.Context, username, password string, role models.Role) error
	RegisterViaInvite(ctx context.Context, code, username, password string) error
	Login(ctx context.Context, username, secret string, requested models.Role, now time.Time) (services.LoginResult, error)
	VerifyCredential(ctx context.Context, username, secret string) (bool, error)
	ResetPasswordAfterOtp(ctx context.Context, username, newPassword string) error
	IssueOneTimePassword(ctx context.Context, username, otp, expiresAt string) error
	GrantRole(ctx context.Context, username string, role models.Role) (models.RoleSet, error)
	RevokeRole(ctx context.Context, username string, role models.Role) (models.RoleSet, error)
	CreateInvite(ctx context.Context, code string, role models.Role) error
	DeleteAccount(ctx context.Context, username string) error
	CompleteSetup(ctx context.Context, username string, p models.Profile, email string) error
	UpdateProfile(ctx context.Context, username string, p models.Profile, email string) error
	Account(ctx context.Context, username string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	NeedsBootstrap(ctx context.Context) (bool, error)
	BootstrapAdmin(ctx context.Context, username, password string) error
}

type App struct {
	svc     accountService
	session *session.Session
	store   repomanager.RepositoryManager
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	now     func() time.Time
}

// NewApp opens the configured store and builds the account service on top
// of it. Logs go to stderr so they do not interleave with prompts.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}

	codec, err := credential.NewCodec(cfg.HashAlgorithm, []byte(cfg.HashPepper))
	if err != nil {
		return nil, err
	}

	store, err := repomanager.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	svc := services.NewAccountService(store, codec, logger)
	return newApp(svc, bufio.NewReader(os.Stdin), os.Stdout, store, logger), nil
}

func newApp(svc accountService, reader *bufio.Reader, out io.Writer, store repomanager.RepositoryManager, logger logging.Logger) *App {
	return &App{
		svc:     svc,
		session: &session.Session{},
		store:   store,
		logger:  logger,
		reader:  reader,
		out:     out,
		now:     time.Now,
	}
}

// Run offers first-run setup when needed and then serves the REPL until the
// user exits. The store is closed on return.
func (a *App) Run(ctx context.Context) {
	defer a.close(ctx)

	fmt.Fprintln(a.out, "Welcome to accountkeeper (type 'help' for commands)")
	if err := a.Bootstrap(ctx); err != nil {
		a.logger.Error(ctx, "bootstrap failed", "error", err)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) close(ctx context.Context) {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error(ctx, "store close failed", "error", err)
	}
}

func (a *App) getStatus() string {
	if !a.session.LoggedIn() {
		return ""
	}
	return fmt.Sprintf("(%s as %s)", a.session.Username(), a.session.Active())
}

func (a *App) isLoggedIn() bool {
	return a.session.LoggedIn()
}

func (a *App) isAdmin() bool {
	return a.session.Is(models.RoleAdmin)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// report prints err in a form meant for the person at the console.
func (a *App) report(err error) error {
	var dateErr *validate.DateError
	if errors.As(err, &dateErr) {
		fmt.Fprint(a.out, dateErr.Reason())
		return err
	}
	a.println("Error:", err.Error())
	return err
}

func (a *App) ask(prompt string) (string, error) {
	return getSimpleText(a.reader, prompt, a.out)
}

func (a *App) askRole(prompt string) (models.Role, error) {
	s, err := a.ask(prompt + " (Admin, Student, Instructor)")
	if err != nil {
		return "", err
	}
	return models.ParseRole(s)
}

// askNewPassword reads a password twice and insists both entries match.
func (a *App) askNewPassword() (string, error) {
	first, err := getPassword(a.out, "New password")
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	second, err := getPassword(a.out, "Repeat password")
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return "", errPasswordsDiffer
	}
	return string(first), nil
}

// Bootstrap creates the administrator account when the store is empty.
func (a *App) Bootstrap(ctx context.Context) error {
	need, err := a.svc.NeedsBootstrap(ctx)
	if err != nil {
		return a.report(err)
	}
	if !need {
		return nil
	}

	a.println("No accounts exist yet. Create the administrator account.")
	username, err := a.ask("Enter administrator username")
	if err != nil {
		return err
	}
	password, err := a.askNewPassword()
	if err != nil {
		return a.report(err)
	}
	if err := a.svc.BootstrapAdmin(ctx, username, password); err != nil {
		return a.report(err)
	}

	a.println("Administrator created. Log in to complete the profile.")
	return nil
}
