package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type userRecord struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Email         string          `json:"email,omitempty"`
	Credential    []byte          `json:"credential,omitempty"`
	OTPActive     bool            `json:"otp_active,omitempty"`
	OTPExpiresAt  string          `json:"otp_expires_at,omitempty"`
	Roles         string          `json:"roles"`
	Profile       *models.Profile `json:"profile,omitempty"`
	SetupComplete bool            `json:"setup_complete,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type inviteRecord struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Roles     string    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisRepository is bound to one WATCH/MULTI/EXEC round. Every key it reads
// is watched first; writes are queued and sent by Flush inside MULTI/EXEC, so
// the round fails with redis.TxFailedErr if another client touched a read
// key in between. Reads observe the round's own queued writes.
type RedisRepository struct {
	tx      *redis.Tx
	prefix  string
	now     func() time.Time
	users   map[string]*userRecord
	invites map[string]*inviteRecord
	pending []func(ctx context.Context, pipe redis.Pipeliner)
}

func NewRedisRepository(tx *redis.Tx, prefix string) *RedisRepository {
	return &RedisRepository{
		tx:      tx,
		prefix:  prefix,
		now:     time.Now,
		users:   make(map[string]*userRecord),
		invites: make(map[string]*inviteRecord),
	}
}

func (r *RedisRepository) userKey(username string) string { return r.prefix + ":user:" + username }
func (r *RedisRepository) inviteKey(code string) string   { return r.prefix + ":invite:" + code }
func (r *RedisRepository) usersKey() string               { return r.prefix + ":users" }
func (r *RedisRepository) invitesKey() string             { return r.prefix + ":invites" }

// Flush sends the queued writes in one MULTI/EXEC block.
func (r *RedisRepository) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	_, err := r.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, write := range r.pending {
			write(ctx, pipe)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.pending = nil
	return nil
}

// load watches key and decodes its JSON value into dst. found is false when
// the key does not exist.
func (r *RedisRepository) load(ctx context.Context, key string, dst any) (found bool, err error) {
	if err := r.tx.Watch(ctx, key).Err(); err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	data, err := r.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("redis error: decode %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisRepository) loadUser(ctx context.Context, username string) (*userRecord, error) {
	if rec, ok := r.users[username]; ok {
		return rec, nil
	}
	rec := &userRecord{}
	found, err := r.load(ctx, r.userKey(username), rec)
	if err != nil {
		return nil, err
	}
	if !found {
		rec = nil
	}
	r.users[username] = rec
	return rec, nil
}

func (r *RedisRepository) loadInvite(ctx context.Context, code string) (*inviteRecord, error) {
	if rec, ok := r.invites[code]; ok {
		return rec, nil
	}
	rec := &inviteRecord{}
	found, err := r.load(ctx, r.inviteKey(code), rec)
	if err != nil {
		return nil, err
	}
	if !found {
		rec = nil
	}
	r.invites[code] = rec
	return rec, nil
}

func (r *RedisRepository) putUser(rec *userRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis error: encode user: %w", err)
	}
	r.users[rec.Username] = rec
	key, name := r.userKey(rec.Username), rec.Username
	r.pending = append(r.pending, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, r.usersKey(), name)
	})
	return nil
}

func (r *RedisRepository) putInvite(rec *inviteRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis error: encode invite: %w", err)
	}
	r.invites[rec.Code] = rec
	key, code := r.inviteKey(rec.Code), rec.Code
	r.pending = append(r.pending, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, r.invitesKey(), code)
	})
	return nil
}

func (r *RedisRepository) dropUser(username string) {
	r.users[username] = nil
	key := r.userKey(username)
	r.pending = append(r.pending, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, r.usersKey(), username)
	})
}

func (r *RedisRepository) dropInvite(code string) {
	r.invites[code] = nil
	key := r.inviteKey(code)
	r.pending = append(r.pending, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, r.invitesKey(), code)
	})
}

// mutateUser loads username, applies fn to a copy and queues the result.
func (r *RedisRepository) mutateUser(ctx context.Context, username string, fn func(rec *userRecord) error) error {
	rec, err := r.loadUser(ctx, username)
	if err != nil {
		return err
	}
	if rec == nil {
		return common.ErrorNotFound
	}
	next := *rec
	if err := fn(&next); err != nil {
		return err
	}
	return r.putUser(&next)
}

func (rec *userRecord) account() (*models.Account, error) {
	roles, err := decodeRoles(rec.Roles)
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	a := &models.Account{
		ID:            rec.ID,
		Username:      rec.Username,
		Email:         rec.Email,
		Credential:    rec.Credential,
		OTPActive:     rec.OTPActive,
		Roles:         roles,
		SetupComplete: rec.SetupComplete,
		CreatedAt:     rec.CreatedAt,
	}
	if rec.Profile != nil {
		p := *rec.Profile
		a.Profile = &p
	}
	if rec.OTPExpiresAt != "" {
		if a.OTPExpiresAt, err = time.Parse(models.DateLayout, rec.OTPExpiresAt); err != nil {
			return nil, fmt.Errorf("redis error: otp expiry: %w", err)
		}
	}
	return a, nil
}

func (rec *inviteRecord) account() (*models.Account, error) {
	roles, err := decodeRoles(rec.Roles)
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return &models.Account{
		ID:        rec.ID,
		Invite:    &models.Invite{Code: rec.Code, Roles: roles},
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (r *RedisRepository) Exists(ctx context.Context, username string) (bool, error) {
	rec, err := r.loadUser(ctx, username)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

func (r *RedisRepository) Find(ctx context.Context, username string) (*models.Account, error) {
	rec, err := r.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, common.ErrorNotFound
	}
	return rec.account()
}

func (r *RedisRepository) Create(ctx context.Context, username string, credential []byte, roles models.RoleSet) (*models.Account, error) {
	existing, err := r.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("username %q: %w", username, common.ErrorConflict)
	}

	rec := &userRecord{
		ID:         uuid.NewString(),
		Username:   username,
		Credential: credential,
		Roles:      roles.String(),
		CreatedAt:  r.now().UTC(),
	}
	if err := r.putUser(rec); err != nil {
		return nil, err
	}
	return rec.account()
}

func (r *RedisRepository) SetProfile(ctx context.Context, username string, p models.Profile, email string) error {
	return r.mutateUser(ctx, username, func(rec *userRecord) error {
		rec.Profile = &p
		rec.Email = email
		rec.SetupComplete = true
		return nil
	})
}

func (r *RedisRepository) UpdateProfile(ctx context.Context, username string, p models.Profile, email string) error {
	return r.mutateUser(ctx, username, func(rec *userRecord) error {
		rec.Profile = &p
		rec.Email = email
		return nil
	})
}

func (r *RedisRepository) MutateRoles(ctx context.Context, username string, op RoleOp, role models.Role) (models.RoleSet, error) {
	rec, err := r.loadUser(ctx, username)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, common.ErrorNotFound
	}

	current, err := decodeRoles(rec.Roles)
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	next := op.apply(current, role)
	if next == current {
		return current, nil
	}

	updated := *rec
	updated.Roles = next.String()
	if err := r.putUser(&updated); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *RedisRepository) SetCredential(ctx context.Context, username string, credential []byte) error {
	return r.mutateUser(ctx, username, func(rec *userRecord) error {
		rec.Credential = credential
		return nil
	})
}

func (r *RedisRepository) SetOTP(ctx context.Context, username string, credential []byte, expiresAt time.Time) error {
	return r.mutateUser(ctx, username, func(rec *userRecord) error {
		rec.Credential = credential
		rec.OTPActive = true
		rec.OTPExpiresAt = expiresAt.Format(models.DateLayout)
		return nil
	})
}

func (r *RedisRepository) ClearOTP(ctx context.Context, username string) error {
	return r.mutateUser(ctx, username, func(rec *userRecord) error {
		rec.OTPActive = false
		rec.OTPExpiresAt = ""
		return nil
	})
}

func (r *RedisRepository) Delete(ctx context.Context, username string) error {
	rec, err := r.loadUser(ctx, username)
	if err != nil {
		return err
	}
	if rec != nil {
		r.dropUser(username)
	}
	return nil
}

func (r *RedisRepository) CreateOrUpdateInvite(ctx context.Context, code string, role models.Role) (bool, error) {
	rec, err := r.loadInvite(ctx, code)
	if err != nil {
		return false, err
	}
	if rec == nil {
		rec = &inviteRecord{
			ID:        uuid.NewString(),
			Code:      code,
			Roles:     models.NewRoleSet(role).String(),
			CreatedAt: r.now().UTC(),
		}
		return true, r.putInvite(rec)
	}

	current, err := decodeRoles(rec.Roles)
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	merged := current.Add(role)
	if merged == current {
		return false, nil
	}

	updated := *rec
	updated.Roles = merged.String()
	return true, r.putInvite(&updated)
}

func (r *RedisRepository) FindInviteRoles(ctx context.Context, code string) (models.RoleSet, error) {
	rec, err := r.loadInvite(ctx, code)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, common.ErrorNotFound
	}
	set, err := decodeRoles(rec.Roles)
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return set, nil
}

func (r *RedisRepository) RedeemInvite(ctx context.Context, code, username string, credential []byte, roles models.RoleSet) error {
	inv, err := r.loadInvite(ctx, code)
	if err != nil {
		return err
	}
	if inv == nil {
		return common.ErrorNotFound
	}

	existing, err := r.loadUser(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("username %q: %w", username, common.ErrorConflict)
	}

	r.dropInvite(code)
	return r.putUser(&userRecord{
		ID:         inv.ID,
		Username:   username,
		Credential: credential,
		Roles:      roles.String(),
		CreatedAt:  inv.CreatedAt,
	})
}

func (r *RedisRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if err := r.tx.Watch(ctx, r.usersKey(), r.invitesKey()).Err(); err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	names, err := r.tx.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	codes, err := r.tx.SMembers(ctx, r.invitesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	// queued writes may add members the server does not know about yet
	for name := range r.users {
		names = append(names, name)
	}
	for code := range r.invites {
		codes = append(codes, code)
	}

	var out []models.Account
	seen := make(map[string]struct{})
	for _, name := range names {
		if _, dup := seen["u:"+name]; dup {
			continue
		}
		seen["u:"+name] = struct{}{}
		rec, err := r.loadUser(ctx, name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		a, err := rec.account()
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	for _, code := range codes {
		if _, dup := seen["i:"+code]; dup {
			continue
		}
		seen["i:"+code] = struct{}{}
		rec, err := r.loadInvite(ctx, code)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		a, err := rec.account()
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *RedisRepository) Count(ctx context.Context) (int, error) {
	list, err := r.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}
