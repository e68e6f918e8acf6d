package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"sitefin/internal/core"
)

const routingKeyPrefix = "summary.changed."

// SummaryChangedMessage is the wire form of a summary change. It names the
// site and revision only; consumers fetch the summary itself.
type SummaryChangedMessage struct {
	SiteID     string    `json:"site_id"`
	Revision   int64     `json:"revision"`
	Deleted    bool      `json:"deleted,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewSummaryChangedMessage wraps a change event for publishing
func NewSummaryChangedMessage(ev core.SummaryChanged) *SummaryChangedMessage {
	return &SummaryChangedMessage{
		SiteID:     ev.SiteID,
		Revision:   ev.Revision,
		Deleted:    ev.Deleted,
		OccurredAt: ev.OccurredAt,
		Timestamp:  time.Now(),
	}
}

// Event converts the message back to the domain event
func (m *SummaryChangedMessage) Event() core.SummaryChanged {
	return core.SummaryChanged{SiteID: m.SiteID, Revision: m.Revision, Deleted: m.Deleted, OccurredAt: m.OccurredAt}
}

// RoutingKey addresses the message to its site so consumers can bind to a
// subset of sites.
func (m *SummaryChangedMessage) RoutingKey() string {
	return routingKeyPrefix + m.SiteID
}

// ToJSON converts the message to JSON bytes
func (m *SummaryChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SummaryChangedMessageFromJSON decodes and checks a message body
func SummaryChangedMessageFromJSON(data []byte) (*SummaryChangedMessage, error) {
	var msg SummaryChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SiteID == "" {
		return nil, fmt.Errorf("message without site_id")
	}
	return &msg, nil
}
