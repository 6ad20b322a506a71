package service

import (
	"errors"
	"go-auth-service/logger"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier compares a plaintext password with a stored hash.
type PasswordVerifier interface {
	Compare(password, hash string) bool
}

// BcryptVerifier checks bcrypt hashes.
type BcryptVerifier struct{}

func (BcryptVerifier) Compare(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		logger.Log.WithError(err).Warn("Stored password hash could not be compared")
	}
	return err == nil
}

// HashPassword produces a bcrypt hash, used when seeding users.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to hash password")
		return "", err
	}
	return string(bytes), nil
}
