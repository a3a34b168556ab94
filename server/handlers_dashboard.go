package server

import (
	"errors"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

// Transaction mirrors the API's ledger entry. Amount is in minor units.
type Transaction struct {
	ID          string    `json:"id,omitempty"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	Date        time.Time `json:"date,omitempty"`
}

// DashboardView is the dashboard page model
type DashboardView struct {
	Transactions []Transaction
	Balance      string
}

// DashboardHandler renders the signed-in landing page with the user's
// transactions.
func (s *Server) DashboardHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var txs []Transaction
		err := s.gateway.DoJSON(r.Context(), http.MethodGet, "/transactions", nil, &txs)
		if s.sessionEnded(w, r, err) {
			return
		}

		data := s.pageData(r)
		if err != nil {
			log.Err(err).Msg("Failed to load transactions")
			data.Error = userMessage(err)
		}
		data.Data = DashboardView{Transactions: txs, Balance: balance(txs, data.User)}
		render(w, tmpl, http.StatusOK, data)
	}
}

// CreateTransactionHandler records a transaction (POST /transactions)
func (s *Server) CreateTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		currency := preferredCurrency(s.session.User())
		amount, err := parseAmount(r.FormValue("amount"), currency)
		if err != nil {
			redirectWithError(w, r, RouteDashboard, "Amount must be a number")
			return
		}
		tx := Transaction{
			Description: strings.TrimSpace(r.FormValue("description")),
			Amount:      amount,
			Currency:    currency,
		}
		if tx.Description == "" {
			redirectWithError(w, r, RouteDashboard, "Description is required")
			return
		}

		err = s.gateway.DoJSON(r.Context(), http.MethodPost, "/transactions", tx, nil)
		if s.sessionEnded(w, r, err) {
			return
		}
		if err != nil {
			redirectWithError(w, r, RouteDashboard, userMessage(err))
			return
		}
		redirectSuccess(w, r, RouteDashboard)
	}
}

// sessionEnded reports whether err ended the session, in which case the
// user has been sent to the login page.
func (s *Server) sessionEnded(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apperrors.ErrSessionExpired) && !errors.Is(err, apperrors.ErrUnauthorized) {
		return false
	}
	if s.session.IsAuthenticated() {
		return false
	}
	redirectWithError(w, r, s.config.GetLoginRoute(), userMessage(apperrors.ErrSessionExpired))
	return true
}

func preferredCurrency(u *users.User) string {
	if u == nil || u.Currency == "" {
		return users.DefaultCurrency
	}
	return strings.ToUpper(u.Currency)
}

// parseAmount converts a decimal amount into the currency's minor unit
func parseAmount(raw, currency string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	fraction := 2
	if c := money.GetCurrency(currency); c != nil {
		fraction = c.Fraction
	}
	return int64(math.Round(f * math.Pow10(fraction))), nil
}

func balance(txs []Transaction, u *users.User) string {
	currency := preferredCurrency(u)
	total := money.New(0, currency)
	for _, tx := range txs {
		code := strings.ToUpper(tx.Currency)
		if code == "" {
			code = currency
		}
		if code != currency {
			continue
		}
		sum, err := total.Add(money.New(tx.Amount, code))
		if err != nil {
			continue
		}
		total = sum
	}
	return total.Display()
}
