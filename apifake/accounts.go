package apifake

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/users"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user         users.User
	passwordHash string
}

// Accounts is an in-memory user table keyed by id, with an email index.
type Accounts struct {
	mu       sync.RWMutex
	byID     map[string]*account
	emailIDs map[string]string // email to user id
}

func NewAccounts() *Accounts {
	return &Accounts{
		byID:     make(map[string]*account),
		emailIDs: make(map[string]string),
	}
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a new user. An empty password creates an account that
// can only sign in through a provider.
func (a *Accounts) Create(email, password, displayName, currency string) (users.User, error) {
	email = normaliseEmail(email)
	if email == "" {
		return users.User{}, apperrors.ErrInvalidCredentials
	}
	if currency == "" {
		currency = users.DefaultCurrency
	}
	if err := users.ValidateCurrency(currency); err != nil {
		return users.User{}, err
	}

	var hash string
	if password != "" {
		var err error
		if hash, err = hashPassword(password); err != nil {
			return users.User{}, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.emailIDs[email]; exists {
		return users.User{}, apperrors.ErrUserExists
	}
	acc := &account{
		user: users.User{
			ID:          uuid.New().String(),
			Email:       email,
			DisplayName: displayName,
			Currency:    strings.ToUpper(currency),
		},
		passwordHash: hash,
	}
	a.byID[acc.user.ID] = acc
	a.emailIDs[email] = acc.user.ID
	return acc.user, nil
}

// Authenticate checks an email and password pair.
func (a *Accounts) Authenticate(email, password string) (users.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.emailIDs[normaliseEmail(email)]
	if !ok {
		return users.User{}, apperrors.ErrInvalidCredentials
	}
	acc := a.byID[id]
	if acc.passwordHash == "" || !checkPasswordHash(password, acc.passwordHash) {
		return users.User{}, apperrors.ErrInvalidCredentials
	}
	return acc.user, nil
}

func (a *Accounts) Get(id string) (users.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	acc, ok := a.byID[id]
	if !ok {
		return users.User{}, apperrors.ErrUserNotFound
	}
	return acc.user, nil
}

func (a *Accounts) Email(id string) (string, error) {
	u, err := a.Get(id)
	return u.Email, err
}

// ForProvider returns the account linked to a provider login, creating it on
// first use.
func (a *Accounts) ForProvider(provider string) (users.User, error) {
	email := provider + "-user@example.com"
	a.mu.RLock()
	id, ok := a.emailIDs[email]
	a.mu.RUnlock()
	if ok {
		return a.Get(id)
	}
	u, err := a.Create(email, "", strings.ToUpper(provider[:1])+provider[1:]+" User", "")
	if apperrors.Is(err, apperrors.ErrUserExists) {
		return a.ForProvider(provider)
	}
	return u, err
}

// Update applies patch to the user with the given id.
func (a *Accounts) Update(id string, patch users.Patch) (users.User, error) {
	if err := patch.Validate(); err != nil {
		return users.User{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.byID[id]
	if !ok {
		return users.User{}, apperrors.ErrUserNotFound
	}
	if patch.Email != nil {
		email := normaliseEmail(*patch.Email)
		if other, taken := a.emailIDs[email]; taken && other != id {
			return users.User{}, apperrors.ErrUserExists
		}
		delete(a.emailIDs, acc.user.Email)
		a.emailIDs[email] = id
		patch.Email = &email
	}
	if patch.Currency != nil {
		code := strings.ToUpper(*patch.Currency)
		patch.Currency = &code
	}
	acc.user = acc.user.Merge(patch)
	return acc.user, nil
}
