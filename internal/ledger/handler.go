package ledger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerbook/ledgerbook/internal/money"
)

// Handler exposes the ledger over HTTP. Requests carry form fields
// (username, password, amount) and responses are JSON.
type Handler struct {
	service *Service
}

// NewHandler constructs a ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type messageResponse struct {
	Message string `json:"message"`
}

type accountResponse struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Balance  json.Number `json:"balance"`
}

type balanceResponse struct {
	Balance json.Number `json:"balance"`
}

// Register creates a new account with a zero balance.
func (h *Handler) Register(c *fiber.Ctx) error {
	creds := formCredentials(c)
	account, err := h.service.Register(c.UserContext(), creds)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return c.Status(http.StatusConflict).JSON(messageResponse{Message: "Username already taken!"})
		case errors.Is(err, ErrInvalidCredentialInput):
			return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: err.Error()})
		case errors.Is(err, ErrStoreUnavailable):
			return c.SendStatus(http.StatusServiceUnavailable)
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{
		ID:       account.ID,
		Username: account.Username,
		Balance:  account.Balance.Number(),
	})
}

// Login verifies credentials without mutating anything.
func (h *Handler) Login(c *fiber.Ctx) error {
	if _, err := h.service.Authenticate(c.UserContext(), formCredentials(c)); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return c.SendStatus(http.StatusServiceUnavailable)
		}
		return c.Status(http.StatusUnauthorized).JSON(messageResponse{Message: "Login failed!"})
	}
	return c.Status(http.StatusOK).JSON(messageResponse{Message: "Login successful!"})
}

// Deposit adds funds to the authenticated account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	amount, err := money.Parse(c.FormValue("amount"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: "Invalid amount!"})
	}
	balance, err := h.service.Deposit(c.UserContext(), formCredentials(c), amount)
	if err != nil {
		return h.transactionError(c, err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{Balance: balance.Number()})
}

// Withdraw removes funds from the authenticated account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	amount, err := money.Parse(c.FormValue("amount"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: "Invalid amount!"})
	}
	balance, err := h.service.Withdraw(c.UserContext(), formCredentials(c), amount)
	if err != nil {
		return h.transactionError(c, err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{Balance: balance.Number()})
}

// Balance returns the current balance for the authenticated account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.Balance(c.UserContext(), formCredentials(c))
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return c.SendStatus(http.StatusServiceUnavailable)
		}
		return c.Status(http.StatusUnauthorized).JSON(messageResponse{Message: "Failed to retrieve balance!"})
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{Balance: balance.Number()})
}

// ListAccounts returns every account. Route-level admin gating applies; see
// routes.Setup.
func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext())
	if err != nil {
		return c.SendStatus(http.StatusServiceUnavailable)
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, accountResponse{
			ID:       account.ID,
			Username: account.Username,
			Balance:  account.Balance.Number(),
		})
	}
	return c.Status(http.StatusOK).JSON(out)
}

func (h *Handler) transactionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: "Insufficient funds!"})
	case errors.Is(err, ErrInvalidAmount):
		return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: "Invalid amount!"})
	case errors.Is(err, ErrStoreUnavailable):
		return c.SendStatus(http.StatusServiceUnavailable)
	default:
		return c.Status(http.StatusUnauthorized).JSON(messageResponse{Message: "Transaction failed!"})
	}
}

func formCredentials(c *fiber.Ctx) Credentials {
	return Credentials{
		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
	}
}
