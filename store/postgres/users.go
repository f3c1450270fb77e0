package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/geo"
)

// Store is backed by a *sql.DB using the "pgx" driver.
type Store struct {
	db *sql.DB
}

var _ riskAuth.UserStore = (*Store)(nil)

// Open connects with pool defaults sized for an auth service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity; used by health checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const selectUser = `select id, username, credential_hash, roles, attributes, contact_channels,
	mfa_enabled, mfa_secret, failed_attempts, locked_until, last_login_at,
	last_known_ip, last_known_geo, active
	from users`

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*riskAuth.UserIdentity, error) {
	return s.getUser(ctx, selectUser+` where lower(username) = lower($1)`, username)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*riskAuth.UserIdentity, error) {
	return s.getUser(ctx, selectUser+` where id = $1`, userID)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (*riskAuth.UserIdentity, error) {
	var (
		u                            riskAuth.UserIdentity
		roles, attrs, channels, last []byte
		lockedUntil, lastLogin       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.CredentialHash, &roles, &attrs, &channels,
		&u.MFAEnabled, &u.MFASecret, &u.FailedAttempts, &lockedUntil, &lastLogin,
		&u.LastKnownIP, &last, &u.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, riskAuth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := decodeJSON("roles", roles, &u.Roles); err != nil {
		return nil, err
	}
	if err := decodeJSON("attributes", attrs, &u.Attributes); err != nil {
		return nil, err
	}
	if err := decodeJSON("contact_channels", channels, &u.ContactChannels); err != nil {
		return nil, err
	}
	if len(last) > 0 {
		var loc geo.Location
		if err := decodeJSON("last_known_geo", last, &loc); err != nil {
			return nil, err
		}
		u.LastKnownGeo = &loc
	}
	if lockedUntil.Valid {
		u.LockedUntil = lockedUntil.Time.UTC()
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time.UTC()
	}
	return &u, nil
}

func decodeJSON(column string, raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return nil
}

func (s *Store) RecordFailedLogin(ctx context.Context, userID string, failedAttempts int, lockedUntil time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set failed_attempts = $2, locked_until = $3 where id = $1`,
		userID, failedAttempts, nullTime(lockedUntil))
	return err
}

func (s *Store) RecordSuccessfulLogin(ctx context.Context, userID string, rec riskAuth.LoginRecord) error {
	var location any
	if rec.Geo != nil {
		raw, err := json.Marshal(rec.Geo)
		if err != nil {
			return err
		}
		location = string(raw)
	}
	_, err := s.db.ExecContext(ctx, `
		update users
		set failed_attempts = 0, locked_until = null, last_login_at = $2,
			last_known_ip = $3, last_known_geo = coalesce($4, last_known_geo)
		where id = $1`,
		userID, rec.At.UTC(), rec.IP, location)
	return err
}

func (s *Store) SaveMFASecret(ctx context.Context, userID, secret string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set mfa_secret = $2, mfa_enabled = true where id = $1`, userID, secret)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return riskAuth.ErrUserNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the whole set in one transaction.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from backup_codes where user_id = $1`, userID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`insert into backup_codes(user_id, code_hash) values ($1, $2)`, userID, h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ConsumeBackupCode deletes the code; only the caller whose delete hit a row wins.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from backup_codes where user_id = $1 and code_hash = $2`, userID, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
