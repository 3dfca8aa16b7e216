package gate

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConsentRecord is one accept or decline at the recording notice.
type ConsentRecord struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"userId"`
	RoomName     string    `json:"roomName"`
	Accepted     bool      `json:"accepted"`
	TermsVersion string    `json:"termsVersion"`
	Camera       bool      `json:"camera"`
	Microphone   bool      `json:"microphone"`
	RecordedAt   time.Time `json:"recordedAt"`
}

type ConsentRepository interface {
	Create(ctx context.Context, r *ConsentRecord) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*ConsentRecord, int, error)
}
