package users

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/internal/utils"
)

// DefaultCurrency is used when the API returns a user without a preferred currency.
const DefaultCurrency = "USD"

// User is the authenticated user record as returned by the REST API.
type User struct {
	ID          string `json:"id"`                    // Unique identifier for the user
	Email       string `json:"email"`                 // User's email address
	DisplayName string `json:"displayName,omitempty"` // Name shown in the dashboard header
	Currency    string `json:"currency,omitempty"`    // Preferred ISO 4217 currency code
}

// Patch is a partial user update. Nil fields are left unchanged.
type Patch struct {
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
	Currency    *string `json:"currency,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Email == nil && p.DisplayName == nil && p.Currency == nil
}

// Merge shallow-merges the patch into a copy of the user.
func (u User) Merge(p Patch) User {
	u.Email = utils.Merge(u.Email, p.Email)
	u.DisplayName = utils.Merge(u.DisplayName, p.DisplayName)
	u.Currency = utils.Merge(u.Currency, p.Currency)
	return u
}

// Name returns the display name, falling back to the email address.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// CurrencySymbol returns the grapheme of the user's preferred currency.
func (u User) CurrencySymbol() string {
	code := u.Currency
	if code == "" {
		code = DefaultCurrency
	}
	c := money.GetCurrency(strings.ToUpper(code))
	if c == nil {
		return code
	}
	return c.Grapheme
}

// ValidateCurrency checks that code is a known ISO 4217 currency.
func ValidateCurrency(code string) error {
	if code == "" {
		return fmt.Errorf("currency is required: %w", apperrors.ErrInvalidCurrency)
	}
	if money.GetCurrency(strings.ToUpper(code)) == nil {
		return fmt.Errorf("unknown currency %q: %w", code, apperrors.ErrInvalidCurrency)
	}
	return nil
}

// Validate checks the patch fields that carry constraints.
func (p Patch) Validate() error {
	if p.Currency != nil {
		if err := ValidateCurrency(*p.Currency); err != nil {
			return err
		}
	}
	if p.Email != nil && !strings.Contains(*p.Email, "@") {
		return fmt.Errorf("invalid email address %q", *p.Email)
	}
	return nil
}
