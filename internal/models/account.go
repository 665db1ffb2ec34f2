package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Account is a row of the accounts table. The password hash never leaves
// the server.
type Account struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	DisplayName  string     `json:"displayName" db:"display_name"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	LastSignIn   *time.Time `json:"lastSignIn,omitempty" db:"last_sign_in"`
	SignInCount  int        `json:"signInCount" db:"sign_in_count"`
	Disabled     bool       `json:"-" db:"disabled"`
}

// NewAccount returns an unsaved account whose password is already hashed.
func NewAccount(email, displayName, password string, now time.Time) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Account{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    now,
	}, nil
}

func (a *Account) PasswordMatches(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}
