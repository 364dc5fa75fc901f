package dto

import (
	"time"

	appsync "github.com/erp/vendorsync/internal/application/vendorsync"
)

// Delivery statuses reported back to the vendor
const (
	DeliveryAccepted  = "accepted"
	DeliveryDuplicate = "duplicate"
	DeliveryEmpty     = "empty"
)

// WebhookReceiptResponse acknowledges an inbound delivery
type WebhookReceiptResponse struct {
	DeliveryID string `json:"delivery_id,omitempty"`
	Status     string `json:"status"`
	SyncType   string `json:"sync_type,omitempty"`
	Records    int    `json:"records"`
	JobID      string `json:"job_id,omitempty"`
}

// NewWebhookReceiptResponse converts an ingest receipt
func NewWebhookReceiptResponse(r *appsync.WebhookReceipt) WebhookReceiptResponse {
	resp := WebhookReceiptResponse{
		DeliveryID: r.DeliveryID,
		Status:     DeliveryEmpty,
		SyncType:   string(r.SyncType),
		Records:    r.Records,
	}
	if r.Job != nil {
		resp.Status = DeliveryAccepted
		resp.JobID = r.Job.ID.String()
	}
	return resp
}

// DuplicateDeliveryResponse acknowledges a redelivery that was already processed
func DuplicateDeliveryResponse() WebhookReceiptResponse {
	return WebhookReceiptResponse{Status: DeliveryDuplicate}
}

// HealthResponse reports the state of the process and its dependencies
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
