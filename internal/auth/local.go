package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/models"
	"github.com/tahcohcat/vocalize-web/internal/services"
)

// LocalProvider keeps accounts in the application's SQLite database.
type LocalProvider struct {
	accounts        *services.Accounts
	minPasswordSize int
	logger          *logger.Log
}

func NewLocalProvider(accounts *services.Accounts, minPasswordSize int) *LocalProvider {
	if minPasswordSize <= 0 {
		minPasswordSize = DefaultMinPasswordSize
	}
	return &LocalProvider{
		accounts:        accounts,
		minPasswordSize: minPasswordSize,
		logger:          logger.New().Named("auth.local"),
	}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	if err := validateEmail(email); err != nil {
		return Session{}, signInFailure(err)
	}
	if password == "" {
		return Session{}, ErrInvalidCredentials
	}

	account, err := p.accounts.SignIn(ctx, email, password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrAccountDisabled):
		return Session{}, newError(CodeInvalidCredentials, err)
	case err != nil:
		p.logger.WithError(err).Error("sign in failed")
		return Session{}, newError(CodeUnknown, err)
	}
	return p.session(account), nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	if err := validateEmail(email); err != nil {
		return Session{}, err
	}
	if len(password) < p.minPasswordSize {
		return Session{}, ErrWeakPassword
	}

	displayName := strings.SplitN(strings.TrimSpace(email), "@", 2)[0]
	account, err := p.accounts.Register(ctx, email, displayName, password)
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		return Session{}, newError(CodeEmailInUse, err)
	case err != nil:
		p.logger.WithError(err).Error("sign up failed")
		return Session{}, newError(CodeUnknown, err)
	}
	return p.session(account), nil
}

func (p *LocalProvider) session(a *models.Account) Session {
	return Session{
		UserID:      strconv.FormatInt(a.ID, 10),
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Provider:    p.Name(),
	}
}
