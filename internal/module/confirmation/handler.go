package confirmation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/payflow/server/internal/shared/errors"
	"github.com/payflow/server/internal/shared/response"
)

// Handler serves confirmation run state.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new confirmation handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes registers the confirmation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/payment/:id/confirmation", h.Get)
}

// Get returns the confirmation run of a card payment.
//
//	@Summary	Get confirmation progress
//	@Tags		payments
//	@Produce	json
//	@Param		id	path		string	true	"Payment ID"
//	@Success	200	{object}	Snapshot
//	@Failure	404	{object}	apperrors.ErrorResponse
//	@Router		/v1/payment/{id}/confirmation [get]
func (h *Handler) Get(c *gin.Context) {
	snapshot, err := h.manager.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			response.Error(c, apperrors.NotFound("confirmation run"))
			return
		}
		response.Error(c, apperrors.Internal("failed to load confirmation run", err))
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
