package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/database"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/models"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountDisabled    = errors.New("account is disabled")
)

const accountColumns = `id, email, password_hash, display_name, created_at, last_sign_in, sign_in_count, disabled`

// Accounts stores local sign-in accounts.
type Accounts struct {
	db     *database.DB
	now    func() time.Time
	logger *logger.Log
}

func NewAccounts(db *database.DB) *Accounts {
	return &Accounts{db: db, now: time.Now, logger: logger.New().Named("accounts")}
}

// Register stores a new account. Emails are compared case-insensitively.
func (s *Accounts) Register(ctx context.Context, email, displayName, password string) (*models.Account, error) {
	account, err := models.NewAccount(canonicalEmail(email), displayName, password, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, display_name, created_at)
		 VALUES (:email, :password_hash, :display_name, :created_at)`, account)
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}

	if account.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("read account id: %w", err)
	}
	s.logger.Info("account registered", zap.Int64("account_id", account.ID))
	return account, nil
}

// SignIn checks the password and records the sign-in. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Accounts) SignIn(ctx context.Context, email, password string) (*models.Account, error) {
	var account *models.Account
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		a, err := s.find(ctx, tx, `email = ?`, canonicalEmail(email))
		switch {
		case errors.Is(err, ErrAccountNotFound):
			return ErrInvalidCredentials
		case err != nil:
			return err
		case !a.PasswordMatches(password):
			return ErrInvalidCredentials
		case a.Disabled:
			return ErrAccountDisabled
		}

		now := s.now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET last_sign_in = ?, sign_in_count = sign_in_count + 1 WHERE id = ?`,
			now, a.ID); err != nil {
			return fmt.Errorf("record sign-in: %w", err)
		}
		a.LastSignIn = &now
		a.SignInCount++
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Accounts) ByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.find(ctx, s.db, `id = ?`, id)
}

// Disable blocks further sign-ins without deleting the account.
func (s *Accounts) Disable(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET disabled = TRUE WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *Accounts) find(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*models.Account, error) {
	var a models.Account
	err := sqlx.GetContext(ctx, q, &a, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
