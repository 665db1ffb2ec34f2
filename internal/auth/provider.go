package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/database"
	"github.com/tahcohcat/vocalize-web/internal/services"
)

const DefaultMinPasswordSize = 6

// Session identifies a signed-in user.
type Session struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Provider    string `json:"provider"`
}

// Provider signs users in with email and password. Every error it returns
// is an *Error.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	Name() string
}

// NewProvider builds the provider named by cfg.Provider. db is only used by
// the local provider.
func NewProvider(ctx context.Context, cfg config.AuthConfig, db *database.DB) (Provider, error) {
	switch cfg.Provider {
	case "firebase":
		return NewFirebaseProvider(ctx, cfg.FirebaseAPIKey)
	case "local", "":
		if db == nil {
			return nil, fmt.Errorf("local auth requires a database")
		}
		return NewLocalProvider(services.NewAccounts(db), cfg.MinPasswordSize), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

// signInFailure narrows err to the codes sign-in reports: a malformed email
// reads as bad credentials.
func signInFailure(err error) error {
	switch CodeOf(err) {
	case CodeInvalidCredentials, CodeUnknown:
		return err
	default:
		return newError(CodeInvalidCredentials, err)
	}
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return newError(CodeInvalidEmail, err)
	}
	return nil
}
