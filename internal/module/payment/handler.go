package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/payflow/server/internal/module/payment/domain"
	apperrors "github.com/payflow/server/internal/shared/errors"
	"github.com/payflow/server/internal/shared/response"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	RegisterValidators()
	return &Handler{service: service}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payment")
	{
		payments.POST("", h.Create)
		payments.GET("", h.List)
		payments.GET("/:id", h.Get)
		payments.PUT("/:id", h.Update)
	}
}

// Create creates a payment.
//
//	@Summary	Create a payment
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		CreatePaymentRequest	true	"Payment"
//	@Success	201		{object}	PaymentResponse
//	@Failure	400		{object}	apperrors.ErrorResponse
//	@Router		/v1/payment [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	customerRef := req.CustomerRef
	if customerRef == "" {
		customerRef = req.CPF
	}

	p, err := h.service.Create(c.Request.Context(), CreateInput{
		CustomerRef: customerRef,
		Description: req.Description,
		Amount:      req.Amount.String(),
		Method:      req.PaymentMethod,
	})
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ToResponse(p))
}

// Get returns a payment by id.
//
//	@Summary	Get a payment
//	@Tags		payments
//	@Produce	json
//	@Param		id	path		string	true	"Payment ID"
//	@Success	200	{object}	PaymentResponse
//	@Failure	404	{object}	apperrors.ErrorResponse
//	@Router		/v1/payment/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(p))
}

// List returns payments filtered by customer, method and status.
//
//	@Summary	List payments
//	@Tags		payments
//	@Produce	json
//	@Param		customerRef		query	string	false	"Customer reference"
//	@Param		paymentMethod	query	string	false	"Payment method"
//	@Param		status			query	string	false	"Payment status"
//	@Success	200				{array}	PaymentResponse
//	@Router		/v1/payment [get]
func (h *Handler) List(c *gin.Context) {
	var q ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	filter := &Filter{CustomerRef: q.CustomerRef, Limit: q.Limit, Offset: q.Offset}
	if filter.CustomerRef == "" {
		filter.CustomerRef = q.CPF
	}
	if q.PaymentMethod != "" {
		m, _ := domain.ParseMethod(q.PaymentMethod)
		filter.Method = &m
	}
	if q.Status != "" {
		s, _ := domain.ParseStatus(q.Status)
		filter.Status = &s
	}

	payments, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	out := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		out[i] = ToResponse(p)
	}
	c.JSON(http.StatusOK, out)
}

// Update changes description, amount or status of a payment.
//
//	@Summary	Update a payment
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"Payment ID"
//	@Param		request	body		UpdatePaymentRequest	true	"Changes"
//	@Success	200		{object}	PaymentResponse
//	@Failure	404		{object}	apperrors.ErrorResponse
//	@Failure	409		{object}	apperrors.ErrorResponse
//	@Router		/v1/payment/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	in := UpdateInput{Description: req.Description, Status: req.Status}
	if req.Amount != nil {
		amount := req.Amount.String()
		in.Amount = &amount
	}

	p, err := h.service.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		handlePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(p))
}

func handlePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		response.Error(c, apperrors.NotFound("payment"))
	case IsValidationError(err):
		response.Error(c, apperrors.ValidationError(err.Error()))
	case errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrReferenceConflict),
		errors.Is(err, domain.ErrPaymentLocked):
		response.Error(c, apperrors.Conflict(err.Error()))
	default:
		response.Error(c, apperrors.Internal("payment operation failed", err))
	}
}
