package model

import (
	"time"

	"github.com/google/uuid"
)

// Proposal is a professional's bid on a job. Submitting one is the gated
// action that consumes credits.
type Proposal struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"-"`
	JobID       string    `json:"job_id"`
	CoverLetter string    `json:"cover_letter"`
	CreatedAt   time.Time `json:"created_at"`
}
