package users_test

import (
	"testing"

	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/internal/utils"
	"github.com/jrsteele09/budget-session/users"
	"github.com/stretchr/testify/require"
)

func TestUser_Merge(t *testing.T) {
	u := users.User{ID: "u-1", Email: "jane@example.com", DisplayName: "Jane", Currency: "USD"}

	t.Run("only set fields change", func(t *testing.T) {
		merged := u.Merge(users.Patch{Currency: utils.Ptr("EUR")})
		require.Equal(t, "EUR", merged.Currency)
		require.Equal(t, "Jane", merged.DisplayName)
		require.Equal(t, "jane@example.com", merged.Email)
		require.Equal(t, "u-1", merged.ID)
	})

	t.Run("original is untouched", func(t *testing.T) {
		_ = u.Merge(users.Patch{DisplayName: utils.Ptr("J")})
		require.Equal(t, "Jane", u.DisplayName)
	})

	t.Run("empty patch", func(t *testing.T) {
		require.True(t, users.Patch{}.IsEmpty())
		require.Equal(t, u, u.Merge(users.Patch{}))
	})
}

func TestValidateCurrency(t *testing.T) {
	require.NoError(t, users.ValidateCurrency("GBP"))
	require.NoError(t, users.ValidateCurrency("eur"))

	err := users.ValidateCurrency("ZZZ")
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrInvalidCurrency)

	require.ErrorIs(t, users.ValidateCurrency(""), apperrors.ErrInvalidCurrency)
}

func TestUser_CurrencySymbol(t *testing.T) {
	require.Equal(t, "€", users.User{Currency: "EUR"}.CurrencySymbol())
	require.Equal(t, "$", users.User{}.CurrencySymbol())
}

func TestPatch_Validate(t *testing.T) {
	require.NoError(t, users.Patch{DisplayName: utils.Ptr("x")}.Validate())
	require.Error(t, users.Patch{Email: utils.Ptr("nope")}.Validate())
	require.Error(t, users.Patch{Currency: utils.Ptr("???")}.Validate())
}
