package auth

import (
	"errors"
	"fmt"

	"github.com/2beens/notesapp/internal/config"

	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 12

var ErrEmptyPassword = errors.New("password is empty")

// HashPassword returns the bcrypt hash stored as an account's password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// passwordMatches reports whether password belongs to the account. A malformed
// hash in the config never matches.
func passwordMatches(account config.Account, password string) bool {
	if password == "" || account.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}
