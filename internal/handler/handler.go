// Package handler содержит HTTP-обработчики API сервиса coinvault.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/coinvault/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, address string) (*model.Account, error)
	Save(ctx context.Context, wallet string, coin, highScore *int64) error
	Balance(ctx context.Context, wallet string) (*model.Account, error)
	Withdraw(ctx context.Context, wallet string, amount int64) (*model.WithdrawResult, error)
}

// Handler реализует HTTP-обработчики API сервиса coinvault.
type Handler struct {
	service     Service
	logger      *zap.Logger
	matchmaking http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// matchmaking может быть nil, тогда websocket-эндпоинт не регистрируется.
func NewHandler(s Service, logger *zap.Logger, matchmaking http.Handler) *Handler {
	return &Handler{
		service:     s,
		logger:      logger,
		matchmaking: matchmaking,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError логирует ошибку и отвечает {success:false, message}.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	fields = append(fields, zap.Error(err), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" error", fields...)
	} else {
		h.logger.Warn(op+" rejected", fields...)
	}
	writeJSON(w, status, errorResponse{Success: false, Message: err.Error()})
}

type loginRequest struct {
	Address string `json:"address"`
}

type loginResponse struct {
	Success   bool  `json:"success"`
	Balance   int64 `json:"balance"`
	HighScore int64 `json:"highScore"`
}

// Login создаёт учётную запись при первом входе и возвращает баланс и рекорд.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "No address"})
		return
	}

	acc, err := h.service.Login(r.Context(), req.Address)
	if err != nil {
		h.writeError(w, "login", err, zap.String("address", req.Address))
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Balance:   acc.Coin,
		HighScore: acc.HighScore,
	})
}

type saveRequest struct {
	Wallet    string `json:"wallet"`
	Coin      *int64 `json:"coin"`
	HighScore *int64 `json:"highScore"`
}

// Save сохраняет баланс и рекорд игрока; отсутствующие поля не изменяются.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "No wallet"})
		return
	}

	if err := h.service.Save(r.Context(), req.Wallet, req.Coin, req.HighScore); err != nil {
		h.writeError(w, "save", err, zap.String("wallet", req.Wallet))
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type balanceResponse struct {
	Success   bool   `json:"success"`
	Wallet    string `json:"wallet"`
	Balance   int64  `json:"balance"`
	HighScore int64  `json:"highScore"`
}

// GetBalance возвращает баланс кошелька без создания учётной записи.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	acc, err := h.service.Balance(r.Context(), wallet)
	if err != nil {
		h.writeError(w, "get balance", err, zap.String("wallet", wallet))
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Success:   true,
		Wallet:    acc.Wallet,
		Balance:   acc.Coin,
		HighScore: acc.HighScore,
	})
}

type withdrawRequest struct {
	Wallet string          `json:"wallet"`
	Amount json.RawMessage `json:"amount"`
	// Message и Signature принимаются для совместимости с клиентом, но не проверяются.
	Message   string `json:"message,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type withdrawResponse struct {
	Success    bool        `json:"success"`
	ClaimData  model.Claim `json:"claimData"`
	NewBalance int64       `json:"newBalance"`
}

// Withdraw списывает монеты и возвращает подписанную заявку на вывод в контракт.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Malformed request"})
		return
	}

	if req.Wallet == "" || len(req.Amount) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Missing Data"})
		return
	}

	// Строки, дроби и null не принимаются: сумма должна быть целым JSON-числом.
	amount, err := strconv.ParseInt(string(req.Amount), 10, 64)
	if err != nil || amount <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "amount must be a positive integer"})
		return
	}

	res, err := h.service.Withdraw(r.Context(), req.Wallet, amount)
	if err != nil {
		h.writeError(w, "withdraw", err, zap.String("wallet", req.Wallet), zap.Int64("amount", amount))
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		Success:    true,
		ClaimData:  res.ClaimData,
		NewBalance: res.NewBalance,
	})
}
