package wallet

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/middleware"
	"github.com/richxcame/ride-dispatch/pkg/pagination"
)

// Handler handles HTTP requests for wallet balances and ledgers
type Handler struct {
	repo *Repository
}

// NewHandler creates a new wallet handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// GetWallet handles fetching the caller's wallet balance
func (h *Handler) GetWallet(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	w, err := h.repo.GetByUserID(c.Request.Context(), userID)
	if errors.Is(err, ErrWalletNotFound) {
		// No credits yet. Report a zero balance rather than an error.
		common.SuccessResponse(c, gin.H{"balance": 0})
		return
	}
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to get wallet")
		return
	}

	common.SuccessResponse(c, w)
}

// ListTransactions handles listing the caller's ledger, newest first
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	params := pagination.ParseParams(c)
	txs, err := h.repo.ListTransactions(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	common.SuccessResponse(c, txs)
}
