// internal/api/handler/slot.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"slotmine/internal/api/types"
	"slotmine/internal/domain"
	"slotmine/internal/service"
	"slotmine/internal/util"
)

// DefaultTimeout bounds request handling; claims must fail fast and
// retryable rather than hang, since they are user-facing.
const DefaultTimeout = 15 * time.Second

// SlotHandler handles HTTP requests for slot and wallet operations.
type SlotHandler struct {
	slots  service.SlotService
	claims service.ClaimService
	logger *slog.Logger
}

// NewSlotHandler creates a new SlotHandler.
func NewSlotHandler(slots service.SlotService, claims service.ClaimService, logger *slog.Logger) *SlotHandler {
	return &SlotHandler{
		slots:  slots,
		claims: claims,
		logger: logger,
	}
}

// respondWithJSON sends a JSON response.
func respondWithJSON(logger *slog.Logger, w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError maps service errors onto the HTTP error taxonomy.
func respondWithError(logger *slog.Logger, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = "Invalid input"
	case util.IsError(err, util.ErrNotFound), util.IsError(err, util.ErrOwnerNotFound),
		util.IsError(err, util.ErrWalletNotFound), util.IsError(err, util.ErrSlotInactive):
		statusCode = http.StatusNotFound
		message = "Resource not found"
	case util.IsError(err, util.ErrInsufficientBalance):
		statusCode = http.StatusPaymentRequired
		message = "Insufficient balance"
	case util.IsError(err, util.ErrDuplicateEntry):
		statusCode = http.StatusConflict
		message = "Duplicate entry"
	case util.IsError(err, util.ErrConcurrencyConflict):
		statusCode = http.StatusConflict
		message = "Operation already in progress, retry shortly"
	default:
		logger.Error("Unhandled service error", "error", err)
	}

	respondWithJSON(logger, w, statusCode, map[string]string{"error": message})
}

func ownerIDParam(r *http.Request) (int64, error) {
	ownerID, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
	if err != nil || ownerID <= 0 {
		return 0, util.ErrInvalidInput
	}
	return ownerID, nil
}

// CreateOwnerRequest represents the request body for owner creation.
type CreateOwnerRequest struct {
	Username string `json:"username"`
}

// CreateOwner handles owner registration.
// POST /owners
func (h *SlotHandler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req CreateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		respondWithError(h.logger, w, util.ErrInvalidInput)
		return
	}

	user, wallet, err := h.slots.CreateOwner(r.Context(), req.Username)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusCreated, map[string]interface{}{
		"owner_id": user.ID,
		"username": user.Username,
		"currency": wallet.Currency,
		"balance":  wallet.Balance,
	})
}

// PurchaseSlotRequest represents the request body for a slot purchase.
type PurchaseSlotRequest struct {
	OwnerID      int64           `json:"owner_id"`
	Principal    decimal.Decimal `json:"principal"`
	WeeklyRate   decimal.Decimal `json:"weekly_rate"`
	DurationDays int             `json:"duration_days"`
}

// PurchaseSlot handles the slot purchase request.
// POST /slots
func (h *SlotHandler) PurchaseSlot(w http.ResponseWriter, r *http.Request) {
	var req PurchaseSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, util.ErrInvalidInput)
		return
	}
	if req.OwnerID <= 0 || !req.Principal.IsPositive() || !req.WeeklyRate.IsPositive() || req.DurationDays <= 0 {
		respondWithError(h.logger, w, util.ErrInvalidInput)
		return
	}

	slot, err := h.slots.PurchaseSlot(r.Context(), req.OwnerID, req.Principal, req.WeeklyRate,
		time.Duration(req.DurationDays)*24*time.Hour)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusCreated, slot)
}

// GetProjectedEarnings handles the live-earnings aggregate request.
// GET /owners/{ownerID}/earnings
func (h *SlotHandler) GetProjectedEarnings(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	projection, err := h.slots.GetProjectedEarnings(r.Context(), ownerID)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, projection)
}

// Claim handles the user-triggered claim request.
// POST /owners/{ownerID}/claim
func (h *SlotHandler) Claim(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	result, err := h.claims.Claim(r.Context(), ownerID)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, result)
}

// GetWallet handles the wallet balance request.
// GET /owners/{ownerID}/wallet
func (h *SlotHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	wallet, err := h.slots.GetWallet(r.Context(), ownerID)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"owner_id": wallet.OwnerID,
		"balance":  wallet.Balance,
		"currency": wallet.Currency,
	})
}

// DepositRequest represents the request body for a wallet deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit handles the wallet funding request.
// POST /owners/{ownerID}/wallet/deposit
func (h *SlotHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Amount.IsPositive() {
		respondWithError(h.logger, w, util.ErrInvalidInput)
		return
	}

	wallet, err := h.slots.Deposit(r.Context(), ownerID, req.Amount)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"message":     "Deposit successful",
		"owner_id":    wallet.OwnerID,
		"new_balance": wallet.Balance,
	})
}

// GetActivity handles the activity history request.
// GET /owners/{ownerID}/activity
func (h *SlotHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	entries, totalCount, err := h.slots.GetActivity(r.Context(), ownerID, limit, offset)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, types.PaginatedResponse[domain.ActivityEntry]{
		Data:       entries,
		Limit:      limit,
		Offset:     offset,
		TotalCount: totalCount,
	})
}
