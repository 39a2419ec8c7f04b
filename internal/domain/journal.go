package domain

import (
	"context"
	"time"
)

// Upload states as stored in the journal.
const (
	UploadFetched   = "fetched"
	UploadInitiated = "initiated"
	UploadAppended  = "appended"
	UploadFinalized = "finalized"
	UploadAborted   = "aborted"
)

// Delivery statuses as stored in the journal.
const (
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// UploadRecord is the last known state of one media upload.
type UploadRecord struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	MediaID    string    `json:"media_id,omitempty"`
	MIMEType   string    `json:"mime_type"`
	TotalBytes int       `json:"total_bytes"`
	Segments   int       `json:"segments"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeliveryRecord is the outcome of one Direct Message dispatch.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	TextLength  int       `json:"text_length"`
	MediaSource string    `json:"media_source,omitempty"`
	MediaID     string    `json:"media_id,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Journal persists upload and delivery outcomes.
type Journal interface {
	RecordUpload(ctx context.Context, rec UploadRecord) error
	RecordDelivery(ctx context.Context, rec DeliveryRecord) error
}
