package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// ActivityMessage describes one write performed by a user. The worker stores
// it in the recent activity feed.
type ActivityMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"type"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewActivityMessage creates a message with a fresh id, stamped at in UTC.
func NewActivityMessage(userID, activityType, action, description string, at time.Time) *ActivityMessage {
	return &ActivityMessage{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        activityType,
		Action:      action,
		Description: description,
		Timestamp:   at.UTC(),
	}
}

// Activity converts the message into the stored row.
func (m *ActivityMessage) Activity() core.Activity {
	return core.Activity{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        m.Type,
		Action:      m.Action,
		Description: m.Description,
		Timestamp:   m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON creates a message from JSON bytes
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.Type == "" || msg.Action == "" {
		return nil, errors.New("activity message missing user, type or action")
	}
	return &msg, nil
}
