package handlers

import (
	"net/http"
	"slices"
	"strings"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/transport/http/dto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	svc service.FulfillmentService
	log *zap.Logger
}

func NewHandler(svc service.FulfillmentService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, h.log, "invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func caller(c *gin.Context) service.Principal {
	p, _ := service.PrincipalFromContext(c.Request.Context())
	return p
}

// ConfirmOrder is the payment provider webhook.
func (h *Handler) ConfirmOrder(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.PaymentConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	o, err := h.svc.ConfirmOrder(c.Request.Context(), id, service.PaymentConfirmation{
		Successful:    req.Successful,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.log, "invalid request body", err)
			return
		}
	}
	res, err := h.svc.CancelOrder(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCancellationResponse(res))
}

func (h *Handler) CancelOrderLine(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathID(c, "lineId")
	if !ok {
		return
	}
	var req dto.CancelLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	res, err := h.svc.CancelOrderLine(c.Request.Context(), id, lineID, req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCancellationResponse(res))
}

// RequestNextUnit answers 204 when the store has no unassigned work.
func (h *Handler) RequestNextUnit(c *gin.Context) {
	u, err := h.svc.RequestNextUnit(c.Request.Context(), caller(c).UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if u == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, dto.NewPickUnitResponse(u))
}

func (h *Handler) ListQueue(c *gin.Context) {
	units, err := h.svc.ListWorkerQueue(c.Request.Context(), caller(c).UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPickUnitList(units))
}

func (h *Handler) CompletePickUnit(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.CompletePickUnit(c.Request.Context(), id, caller(c).UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPickUnitResponse(u))
}

func (h *Handler) ReportIssue(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	u, err := h.svc.ReportIssue(c.Request.Context(), id, caller(c).UserID, req.Note)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPickUnitResponse(u))
}

func (h *Handler) ResolveIssue(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	u, err := h.svc.ResolveIssue(c.Request.Context(), id, service.IssueResolution(req.Resolution))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPickUnitResponse(u))
}

func (h *Handler) AcceptDelivery(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.svc.AcceptDelivery(c.Request.Context(), id, caller(c).UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDeliveryResponse(d))
}

// AdvanceDeliveryStatus accepts either the full status name or its short form
// ("PICKED_UP").
func (h *Handler) AdvanceDeliveryStatus(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.DeliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	next := strings.ToUpper(strings.TrimSpace(req.Status))
	if !strings.HasPrefix(next, "DELIVERY_STATUS_") {
		next = "DELIVERY_STATUS_" + next
	}
	if !slices.Contains(models.AllDeliveryStatuses(), models.DeliveryStatus(next)) {
		badRequest(c, h.log, "unknown delivery status", nil)
		return
	}
	d, err := h.svc.AdvanceDeliveryStatus(c.Request.Context(), id, caller(c).UserID, models.DeliveryStatus(next))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDeliveryResponse(d))
}

func (h *Handler) RateDelivery(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	d, err := h.svc.RateDelivery(c.Request.Context(), id, caller(c).UserID, req.Rating)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDeliveryResponse(d))
}

func (h *Handler) UpdateRiderLocation(c *gin.Context) {
	var req dto.RiderLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	if err := h.svc.UpdateRiderLocation(c.Request.Context(), caller(c).UserID, *req.Latitude, *req.Longitude, req.Online); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ReceiveStock(c *gin.Context) {
	var req dto.ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body", err)
		return
	}
	s, err := h.svc.ReceiveStock(c.Request.Context(), uuid.MustParse(req.SummaryID), uuid.MustParse(req.LocationID), req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSummaryResponse(s))
}

func (h *Handler) AuditLedger(c *gin.Context) {
	list, err := h.svc.AuditLedger(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAuditResponse(list))
}
