package auth

import (
	"fmt"
	"strings"
	"time"
)

// now is the configured clock truncated to the second, the precision the
// users table keeps.
func (a *API) now() time.Time {
	return a.cfg.Now().UTC().Truncate(time.Second)
}

func normalizeEmail(e string) string {
	return strings.TrimSpace(strings.ToLower(e))
}

func validEmailBasic(e string) bool {
	// Minimal sanity check without full RFC validation.
	if e == "" || strings.ContainsAny(e, " \t\r\n") {
		return false
	}
	parts := strings.Split(e, "@")
	if len(parts) != 2 {
		return false
	}
	if parts[0] == "" || parts[1] == "" || !strings.Contains(parts[1], ".") {
		return false
	}
	return !strings.HasPrefix(parts[1], ".") && !strings.HasSuffix(parts[1], ".")
}

// validatePasswordPolicy enforces minimal length and optional strength requirements.
func validatePasswordPolicy(pw string, minLen int, requireStrong bool) error {
	if len(pw) < minLen {
		return fmt.Errorf("%w: password too short (min %d)", ErrInvalidInput, minLen)
	}
	if len(pw) > maxPasswordLengthBytes {
		return fmt.Errorf("%w: password too long (max %d bytes)", ErrInvalidInput, maxPasswordLengthBytes)
	}
	if requireStrong && !hasLetterAndDigit(pw) {
		return fmt.Errorf("%w: password must contain at least one letter and one digit", ErrInvalidInput)
	}
	return nil
}

func hasLetterAndDigit(s string) bool {
	var hasL, hasD bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasD = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasL = true
		}
		if hasL && hasD {
			return true
		}
	}
	return false
}

func (a *API) checkEmail(email string) (string, error) {
	email = normalizeEmail(email)
	if !validEmailBasic(email) {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}

func (a *API) checkPassword(pw string) error {
	return validatePasswordPolicy(pw, a.cfg.MinPasswordLength, a.cfg.RequireStrongPasswords)
}
