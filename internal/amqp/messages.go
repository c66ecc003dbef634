package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type (
	RecordKind string
	Action     string
)

const (
	KindSale    RecordKind = "sale"
	KindAdSpend RecordKind = "ad_spend"

	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// RecordChangeMessage announces that one ledger record changed. It carries
// no record data: consumers always re-read the store.
type RecordChangeMessage struct {
	Kind      RecordKind `json:"kind"`
	Action    Action     `json:"action"`
	ID        int64      `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewRecordChangeMessage(kind RecordKind, action Action, id int64) *RecordChangeMessage {
	return &RecordChangeMessage{
		Kind:      kind,
		Action:    action,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecordChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *RecordChangeMessage) Validate() error {
	switch m.Kind {
	case KindSale, KindAdSpend:
	default:
		return fmt.Errorf("unknown record kind %q", m.Kind)
	}
	switch m.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if m.ID <= 0 {
		return fmt.Errorf("invalid record id %d", m.ID)
	}
	return nil
}

func RecordChangeMessageFromJSON(data []byte) (*RecordChangeMessage, error) {
	var msg RecordChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
