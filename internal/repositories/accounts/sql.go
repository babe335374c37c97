package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/google/uuid"
)

// Dialect is the SQL flavour a SQLRepository speaks. Queries use $n
// placeholders, which both drivers accept.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// lockClause is appended to reads that precede a write in the same
// transaction. SQLite serialises writers on the whole database instead.
func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const accountColumns = `id, username, email, credential, otp_active, otp_expires_at, roles,
		first_name, middle_name, last_name, preferred_name, setup_complete,
		invite_code, invite_roles, created_at`

type SQLRepository struct {
	db      dbx.DBTX
	dialect Dialect
	now     func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, dialect: DialectPostgres, now: time.Now}
}

func NewSQLiteRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, dialect: DialectSQLite, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                                models.Account
		username, otpExpires, inviteCode sql.NullString
		roles, inviteRoles, createdAt    string
		first, middle, last, preferred   string
	)

	err := row.Scan(&a.ID, &username, &a.Email, &a.Credential, &a.OTPActive, &otpExpires, &roles,
		&first, &middle, &last, &preferred, &a.SetupComplete,
		&inviteCode, &inviteRoles, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Username = username.String
	if a.Roles, err = decodeRoles(roles); err != nil {
		return nil, err
	}
	if otpExpires.Valid {
		if a.OTPExpiresAt, err = time.Parse(models.DateLayout, otpExpires.String); err != nil {
			return nil, fmt.Errorf("otp expiry %q: %w", otpExpires.String, err)
		}
	}
	if a.SetupComplete || first != "" || last != "" {
		a.Profile = &models.Profile{FirstName: first, MiddleName: middle, LastName: last, PreferredName: preferred}
	}
	if inviteCode.Valid {
		set, err := decodeRoles(inviteRoles)
		if err != nil {
			return nil, err
		}
		a.Invite = &models.Invite{Code: inviteCode.String, Roles: set}
	}
	if createdAt != "" {
		if a.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
			return nil, fmt.Errorf("created_at %q: %w", createdAt, err)
		}
	}
	return &a, nil
}

func (r *SQLRepository) timestamp() string {
	return r.now().UTC().Format(timestampLayout)
}

// exec runs an UPDATE expected to touch exactly one row and reports
// common.ErrorNotFound when it touched none.
func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", common.ErrorConflict, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLRepository) Exists(ctx context.Context, username string) (bool, error) {
	query := `SELECT COUNT(*) FROM accounts WHERE username = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) Find(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE username = $1` + r.dialect.lockClause()

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *SQLRepository) Create(ctx context.Context, username string, credential []byte, roles models.RoleSet) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (id, username, credential, roles, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	a := &models.Account{
		ID:         uuid.NewString(),
		Username:   username,
		Credential: credential,
		Roles:      roles,
		CreatedAt:  r.now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, query, a.ID, username, credential, roles.String(), a.CreatedAt.Format(timestampLayout))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", username, common.ErrorConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *SQLRepository) SetProfile(ctx context.Context, username string, p models.Profile, email string) error {
	query :=
		`UPDATE accounts
		 SET first_name = $2, middle_name = $3, last_name = $4, preferred_name = $5, email = $6,
		     setup_complete = TRUE
		 WHERE username = $1`

	return r.exec(ctx, query, username, p.FirstName, p.MiddleName, p.LastName, p.PreferredName, email)
}

func (r *SQLRepository) UpdateProfile(ctx context.Context, username string, p models.Profile, email string) error {
	query :=
		`UPDATE accounts
		 SET first_name = $2, middle_name = $3, last_name = $4, preferred_name = $5, email = $6
		 WHERE username = $1`

	return r.exec(ctx, query, username, p.FirstName, p.MiddleName, p.LastName, p.PreferredName, email)
}

func (r *SQLRepository) MutateRoles(ctx context.Context, username string, op RoleOp, role models.Role) (models.RoleSet, error) {
	query := `SELECT roles FROM accounts WHERE username = $1` + r.dialect.lockClause()

	var stored string
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	current, err := decodeRoles(stored)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	next := op.apply(current, role)
	if next == current {
		return current, nil
	}

	if err := r.exec(ctx, `UPDATE accounts SET roles = $2 WHERE username = $1`, username, next.String()); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *SQLRepository) SetCredential(ctx context.Context, username string, credential []byte) error {
	return r.exec(ctx, `UPDATE accounts SET credential = $2 WHERE username = $1`, username, credential)
}

func (r *SQLRepository) SetOTP(ctx context.Context, username string, credential []byte, expiresAt time.Time) error {
	query :=
		`UPDATE accounts
		 SET credential = $2, otp_active = TRUE, otp_expires_at = $3
		 WHERE username = $1`

	return r.exec(ctx, query, username, credential, expiresAt.Format(models.DateLayout))
}

func (r *SQLRepository) ClearOTP(ctx context.Context, username string) error {
	query :=
		`UPDATE accounts
		 SET otp_active = FALSE, otp_expires_at = NULL
		 WHERE username = $1`

	return r.exec(ctx, query, username)
}

func (r *SQLRepository) Delete(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE username = $1`, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) CreateOrUpdateInvite(ctx context.Context, code string, role models.Role) (bool, error) {
	query := `SELECT invite_roles FROM accounts WHERE invite_code = $1` + r.dialect.lockClause()

	var stored string
	err := r.db.QueryRowContext(ctx, query, code).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		insert :=
			`INSERT INTO accounts (id, invite_code, invite_roles, created_at)
			 VALUES ($1, $2, $3, $4)`
		_, err := r.db.ExecContext(ctx, insert, uuid.NewString(), code, models.NewRoleSet(role).String(), r.timestamp())
		if err != nil {
			if dbx.IsUniqueViolation(err) {
				return false, fmt.Errorf("invite %q: %w", code, common.ErrorConflict)
			}
			return false, fmt.Errorf("db error: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	current, err := decodeRoles(stored)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	merged := current.Add(role)
	if merged == current {
		return false, nil
	}

	if err := r.exec(ctx, `UPDATE accounts SET invite_roles = $2 WHERE invite_code = $1`, code, merged.String()); err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLRepository) FindInviteRoles(ctx context.Context, code string) (models.RoleSet, error) {
	query := `SELECT invite_roles FROM accounts WHERE invite_code = $1 AND username IS NULL` + r.dialect.lockClause()

	var stored string
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	set, err := decodeRoles(stored)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return set, nil
}

func (r *SQLRepository) RedeemInvite(ctx context.Context, code, username string, credential []byte, roles models.RoleSet) error {
	query :=
		`UPDATE accounts
		 SET username = $2, credential = $3, roles = $4, invite_code = NULL, invite_roles = ''
		 WHERE invite_code = $1 AND username IS NULL`

	return r.exec(ctx, query, code, username, credential, roles.String())
}

func (r *SQLRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
