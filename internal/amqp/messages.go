package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reasons carried by analysis requests.
const (
	ReasonExpenseRecorded   = "expense.recorded"
	ReasonAnalysisRequested = "analysis.requested"
)

// ErrMalformed marks a message that can never be processed; it is dropped, not requeued.
var ErrMalformed = errors.New("malformed message")

// AnalysisRequestMessage asks the worker to re-run detection and forecasting
// for one user. Zero Months and Threshold fall back to the worker defaults.
type AnalysisRequestMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Reason    string    `json:"reason"`
	Months    int       `json:"months,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Method    string    `json:"method,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAnalysisRequestMessage(userID int64, reason string) *AnalysisRequestMessage {
	return &AnalysisRequestMessage{
		MessageID: uuid.New(),
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *AnalysisRequestMessage) Validate() error {
	if m.UserID <= 0 {
		return fmt.Errorf("%w: user_id must be positive, got %d", ErrMalformed, m.UserID)
	}
	if m.MessageID == uuid.Nil {
		return fmt.Errorf("%w: missing message_id", ErrMalformed)
	}
	if m.Months < 0 {
		return fmt.Errorf("%w: months must not be negative", ErrMalformed)
	}
	if m.Threshold < 0 {
		return fmt.Errorf("%w: threshold must not be negative", ErrMalformed)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *AnalysisRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AnalysisRequestFromJSON decodes and validates a message body.
func AnalysisRequestFromJSON(data []byte) (*AnalysisRequestMessage, error) {
	var msg AnalysisRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
