// Package postgres is the durable store: the source of truth for
// accounts, credentials, refresh sessions, one-time codes, and reset
// requests. Per-account tables key on account_id, so "at most one live
// record per account" is a primary-key constraint and every supersede is
// a single upsert.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	authvault "github.com/mkhalaf/authvault"
)

const uniqueViolation = "23505"

// Store implements authvault.DurableStore over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over the given pool. The caller owns the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateAccount(ctx context.Context, acct authvault.Account, cred authvault.Credential) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, email, verified, admin, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		acct.ID, acct.Email, acct.Verified, acct.Admin, acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authvault.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credentials (account_id, password_hash, changed_at)
		 VALUES ($1, $2, $3)`,
		cred.AccountID, cred.PasswordHash, cred.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*authvault.Account, error) {
	return s.scanAccount(ctx,
		`SELECT id, email, verified, admin, created_at FROM accounts WHERE email = $1`, email)
}

func (s *Store) AccountByID(ctx context.Context, id string) (*authvault.Account, error) {
	return s.scanAccount(ctx,
		`SELECT id, email, verified, admin, created_at FROM accounts WHERE id = $1`, id)
}

func (s *Store) scanAccount(ctx context.Context, query string, arg any) (*authvault.Account, error) {
	var acct authvault.Account
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&acct.ID, &acct.Email, &acct.Verified, &acct.Admin, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authvault.ErrAccountNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &acct, nil
}

func (s *Store) MarkVerified(ctx context.Context, accountID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET verified = TRUE WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authvault.ErrAccountNotFound
	}
	return nil
}

func (s *Store) CredentialByAccount(ctx context.Context, accountID string) (*authvault.Credential, error) {
	var cred authvault.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, password_hash, changed_at FROM credentials WHERE account_id = $1`,
		accountID).
		Scan(&cred.AccountID, &cred.PasswordHash, &cred.ChangedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authvault.ErrAccountNotFound
		}
		return nil, fmt.Errorf("select credential: %w", err)
	}
	return &cred, nil
}

func (s *Store) UpdateCredential(ctx context.Context, accountID, passwordHash string, changedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credentials SET password_hash = $2, changed_at = $3 WHERE account_id = $1`,
		accountID, passwordHash, changedAt)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authvault.ErrAccountNotFound
	}
	return nil
}

func (s *Store) UpsertRefreshSession(ctx context.Context, sess authvault.RefreshSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_sessions (account_id, token_hash, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id) DO UPDATE
		 SET token_hash = EXCLUDED.token_hash,
		     issued_at  = EXCLUDED.issued_at,
		     expires_at = EXCLUDED.expires_at`,
		sess.AccountID, sess.TokenHash[:], sess.IssuedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert refresh session: %w", err)
	}
	return nil
}

func (s *Store) RefreshSessionByAccount(ctx context.Context, accountID string) (*authvault.RefreshSession, error) {
	var (
		sess authvault.RefreshSession
		hash []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, token_hash, issued_at, expires_at
		 FROM refresh_sessions WHERE account_id = $1`, accountID).
		Scan(&sess.AccountID, &hash, &sess.IssuedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authvault.ErrSessionNotFound
		}
		return nil, fmt.Errorf("select refresh session: %w", err)
	}
	if len(hash) != len(sess.TokenHash) {
		return nil, fmt.Errorf("refresh session for %s has malformed token hash", accountID)
	}
	copy(sess.TokenHash[:], hash)
	return &sess, nil
}

func (s *Store) DeleteRefreshSession(ctx context.Context, accountID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authvault.ErrSessionNotFound
	}
	return nil
}

func (s *Store) UpsertOneTimeCode(ctx context.Context, code authvault.OneTimeCode) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO one_time_codes (account_id, code, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO UPDATE
		 SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at`,
		code.AccountID, code.Code, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert one-time code: %w", err)
	}
	return nil
}

// ConsumeOneTimeCode is a single conditional delete, so a matching code
// can be consumed by exactly one of two racing callers.
func (s *Store) ConsumeOneTimeCode(ctx context.Context, accountID, code string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM one_time_codes
		 WHERE account_id = $1 AND code = $2 AND expires_at > $3`,
		accountID, code, now)
	if err != nil {
		return false, fmt.Errorf("consume one-time code: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpsertResetRequest(ctx context.Context, req authvault.ResetRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reset_requests (account_id, secret_hash, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO UPDATE
		 SET secret_hash = EXCLUDED.secret_hash, expires_at = EXCLUDED.expires_at`,
		req.AccountID, req.SecretHash[:], req.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert reset request: %w", err)
	}
	return nil
}

func (s *Store) ActiveResetRequests(ctx context.Context, now time.Time) ([]authvault.ResetRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, secret_hash, expires_at
		 FROM reset_requests WHERE expires_at > $1`, now)
	if err != nil {
		return nil, fmt.Errorf("select reset requests: %w", err)
	}
	defer rows.Close()

	var active []authvault.ResetRequest
	for rows.Next() {
		var (
			req  authvault.ResetRequest
			hash []byte
		)
		if err := rows.Scan(&req.AccountID, &hash, &req.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan reset request: %w", err)
		}
		if len(hash) != len(req.SecretHash) {
			continue
		}
		copy(req.SecretHash[:], hash)
		active = append(active, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reset requests: %w", err)
	}
	return active, nil
}

func (s *Store) DeleteResetRequest(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM reset_requests WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete reset request: %w", err)
	}
	return nil
}
