package amqp

import (
	"encoding/json"
	"time"
)

// Ledger mutation actions carried on the wire.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TransactionEventMessage is the lightweight signal published after a ledger
// mutation. Consumers rebuild the user's insight cache from the database;
// the message carries no transaction data.
type TransactionEventMessage struct {
	UserID        string    `json:"userId"`
	Action        string    `json:"action"`
	TransactionID string    `json:"transactionId"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEventMessage creates an event for one ledger mutation.
func NewTransactionEventMessage(userID, action, transactionID string) *TransactionEventMessage {
	return &TransactionEventMessage{
		UserID:        userID,
		Action:        action,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// EventName maps the action onto the broadcast event name pushed to clients.
func (m *TransactionEventMessage) EventName() string {
	return "transaction-" + m.Action
}

// ToJSON converts the message to JSON bytes.
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON creates a message from JSON bytes.
func TransactionEventFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
