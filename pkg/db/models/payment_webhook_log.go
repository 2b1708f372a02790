package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentWebhookLog is the append-only idempotency record for provider callbacks.
type PaymentWebhookLog struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventID         string          `gorm:"column:event_id;not null;uniqueIndex"`
	EventType       string          `gorm:"column:event_type;not null"`
	Provider        string          `gorm:"column:provider;not null"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Signature       string          `gorm:"column:signature"`
	SignatureValid  bool            `gorm:"column:signature_valid;not null;default:false"`
	Processed       bool            `gorm:"column:processed;not null;default:false"`
	ProcessingError *string         `gorm:"column:processing_error"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
