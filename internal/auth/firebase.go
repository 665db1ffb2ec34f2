package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/tahcohcat/vocalize-web/internal/logger"
)

// FirebaseProvider signs users in with Firebase email/password accounts
// through the Identity Toolkit REST API.
type FirebaseProvider struct {
	svc    *identitytoolkit.Service
	logger *logger.Log
}

func NewFirebaseProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*FirebaseProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("auth.firebase_api_key is required for the firebase provider")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity toolkit client: %w", err)
	}
	return &FirebaseProvider{svc: svc, logger: logger.New().Named("auth.firebase")}, nil
}

func (p *FirebaseProvider) Name() string { return "firebase" }

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	if err := validateEmail(email); err != nil {
		return Session{}, signInFailure(err)
	}
	resp, err := p.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             strings.TrimSpace(email),
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return Session{}, signInFailure(p.decode(err))
	}
	return Session{UserID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName, Provider: p.Name()}, nil
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	if err := validateEmail(email); err != nil {
		return Session{}, err
	}
	resp, err := p.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return Session{}, p.decode(err)
	}
	return Session{UserID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName, Provider: p.Name()}, nil
}

// decode maps Identity Toolkit error messages such as "EMAIL_EXISTS" or
// "WEAK_PASSWORD : Password should be at least 6 characters" onto Code.
func (p *FirebaseProvider) decode(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		p.logger.WithError(err).Warn("identity toolkit request failed")
		return newError(CodeUnknown, err)
	}

	remote := firebaseCode(apiErr.Message)
	if remote == "" && len(apiErr.Errors) > 0 {
		remote = firebaseCode(apiErr.Errors[0].Message)
	}

	code := codeForFirebase(remote)
	if code == CodeUnknown {
		p.logger.WithError(err).Warn("unrecognised identity toolkit error", zap.String("remote_code", remote))
	}
	return newError(code, err)
}

func firebaseCode(message string) string {
	code, _, _ := strings.Cut(message, ":")
	return strings.TrimSpace(code)
}

func codeForFirebase(remote string) Code {
	switch remote {
	case "EMAIL_EXISTS":
		return CodeEmailInUse
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return CodeInvalidEmail
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "MISSING_PASSWORD":
		return CodeInvalidCredentials
	default:
		return CodeUnknown
	}
}
