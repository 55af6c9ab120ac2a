package notification

import (
	"context"
	"encoding/json"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/notification/sse"
	"dispatch_backend/platform/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "fleet:events:"

type relayMessage struct {
	Type      string          `json:"type"`
	CompanyID uuid.UUID       `json:"companyId"`
	Data      json.RawMessage `json:"data"`
}

// Relay carries company-scoped events between processes over Redis pub/sub.
type Relay struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewRelay creates a relay over the given client.
func NewRelay(rdb *redis.Client, log *logger.Logger) *Relay {
	return &Relay{rdb: rdb, log: log}
}

// Handle publishes the event on its company channel. Events without a
// company are dropped.
func (r *Relay) Handle(ctx context.Context, event events.Event) error {
	scoped, ok := event.(events.CompanyScoped)
	if !ok {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event.EventName())
	}
	payload, err := json.Marshal(relayMessage{Type: event.EventName(), CompanyID: scoped.Company(), Data: data})
	if err != nil {
		return errors.Wrap(err, "encode relay message")
	}
	if err := r.rdb.Publish(ctx, relayChannelPrefix+scoped.Company().String(), payload).Err(); err != nil {
		return errors.Wrap(err, "publish relay message")
	}
	return nil
}

// Forward pushes every relayed event into hub until ctx ends.
func (r *Relay) Forward(ctx context.Context, hub *sse.Service) error {
	ps := r.rdb.PSubscribe(ctx, relayChannelPrefix+"*")
	defer func() { _ = ps.Close() }()
	if _, err := ps.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe to event relay")
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("event relay receive failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		var m relayMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			r.log.Warn("event relay decode failed", "channel", msg.Channel, "error", err.Error())
			continue
		}
		hub.PublishToCompany(m.CompanyID, sse.Event{Type: m.Type, Data: m.Data})
	}
}

var _ events.Handler = (*Relay)(nil)
