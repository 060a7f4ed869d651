package events

import (
	"ms-inventory/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// HashPresaleCode returns the bcrypt hash stored on the tier.
func HashPresaleCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPresaleCode reports whether code unlocks the tier. Tiers that are not
// presale-only accept anything.
func CheckPresaleCode(tier models.TicketTier, code string) bool {
	if !tier.IsPresaleOnly {
		return true
	}
	if tier.PresaleCodeHash == "" || code == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tier.PresaleCodeHash), []byte(code)) == nil
}
