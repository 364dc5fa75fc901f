package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	appsync "github.com/erp/vendorsync/internal/application/vendorsync"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/logger"
	"github.com/erp/vendorsync/internal/infrastructure/vendoradapter"
	"github.com/erp/vendorsync/internal/interfaces/http/dto"
	"github.com/erp/vendorsync/internal/interfaces/http/middleware"
	"github.com/erp/vendorsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxWebhookBody bounds a delivery when no limit is configured
const DefaultMaxWebhookBody int64 = 5 << 20

// WebhookIngestor accepts verified vendor deliveries
type WebhookIngestor interface {
	IngestWebhook(ctx context.Context, vendorID string, body []byte, signature string) (*appsync.WebhookReceipt, error)
}

// WebhookHandler receives pushed vendor payloads
type WebhookHandler struct {
	BaseHandler
	ingestor WebhookIngestor
	maxBody  int64
}

// NewWebhookHandler creates a webhook handler. A non-positive maxBody uses
// DefaultMaxWebhookBody.
func NewWebhookHandler(ingestor WebhookIngestor, maxBody int64) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxWebhookBody
	}
	return &WebhookHandler{ingestor: ingestor, maxBody: maxBody}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	router.NewDomainGroup("webhooks", "/webhooks").
		Use(middleware.BodyLimit(h.maxBody)).
		POST("/vendors/:"+middleware.VendorIDParam, h.Receive).
		RegisterRoutes(rg)
}

// Receive handles POST /webhooks/vendors/:vendorId
//
// Responses: 202 with the receipt for accepted or empty deliveries, 200 for
// a redelivery that was already processed, 4xx for deliveries the vendor
// must not retry unchanged, 503 when the queue is full.
func (h *WebhookHandler) Receive(c *gin.Context) {
	vendorID := c.Param(middleware.VendorIDParam)
	if vendorID == "" {
		h.BadRequest(c, "vendor id is required")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "failed to read request body")
		return
	}

	signature := c.GetHeader(vendoradapter.HeaderWebhookSignature)
	receipt, err := h.ingestor.IngestWebhook(c.Request.Context(), vendorID, body, signature)
	if errors.Is(err, vendorsync.ErrDuplicateDelivery) {
		logger.GetGinLogger(c).Info("Duplicate webhook delivery acknowledged", zap.String("vendor_id", vendorID))
		h.Success(c, dto.DuplicateDeliveryResponse())
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, dto.NewWebhookReceiptResponse(receipt))
}
