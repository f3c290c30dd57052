package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/kopesha/kopesha-api/pkg/logger"
)

// recoveryCodeTTL is how long an emailed recovery code stays usable
const recoveryCodeTTL = 15 * time.Minute

// GenerateRecoveryCode returns a random 6-digit code. Codes are short
// because clients read them off a phone screen and type them back in.
func GenerateRecoveryCode() (string, error) {
	const digits = "0123456789"
	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[num.Int64()]
	}
	return string(code), nil
}

// SendRecoveryCode emails a fresh recovery code to the account. Unknown
// emails succeed silently so the endpoint cannot be used to enumerate
// accounts.
func (s *UserService) SendRecoveryCode(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil
	}

	code, err := GenerateRecoveryCode()
	if err != nil {
		return fmt.Errorf("failed to generate recovery code: %w", err)
	}

	if err := s.repo.SetRecoveryCode(ctx, user.ID, code, time.Now()); err != nil {
		return fmt.Errorf("failed to save recovery code: %w", err)
	}
	logger.Info("[Recovery] Code saved for user", "user_id", user.ID)

	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.emailService.SendRecoveryCode(ctx, user, code)
	})

	return nil
}

// VerifyRecoveryCode reports whether the code matches and is still fresh.
// Failures never say why, and unknown emails verify as false rather than
// erroring.
func (s *UserService) VerifyRecoveryCode(ctx context.Context, email, code string) (bool, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return false, nil
	}

	code = strings.TrimSpace(code)
	switch {
	case user.RecoveryCode == nil || user.RecoveryCodeSentAt == nil:
		logger.Info("[Recovery] Verify failed: no code on record", "user_id", user.ID)
		return false, nil
	case *user.RecoveryCode != code:
		logger.Info("[Recovery] Verify failed: code mismatch", "user_id", user.ID)
		return false, nil
	case time.Since(*user.RecoveryCodeSentAt) > recoveryCodeTTL:
		logger.Info("[Recovery] Verify failed: code expired", "user_id", user.ID)
		return false, nil
	}

	return true, nil
}

// UpdatePasswordWithCode sets a new password once the recovery code checks
// out, then burns the code
func (s *UserService) UpdatePasswordWithCode(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(email)

	valid, err := s.VerifyRecoveryCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !valid {
		return ErrInvalidRecoveryCode
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	hashedPassword, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	user.EncryptedPassword = hashedPassword
	user.RecoveryCode = nil
	user.RecoveryCodeSentAt = nil

	return s.repo.Update(ctx, user)
}
