package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoAlert is returned by Dismiss when the technician has no open alert.
var ErrNoAlert = errors.New("no open alert")

// AlertStore persists the open alert set per company.
type AlertStore interface {
	Load(ctx context.Context, companyID uuid.UUID) ([]Alert, error)
	// Apply writes raised alerts and removes cleared ones. Untouched alerts
	// keep their stored state, including dismissal.
	Apply(ctx context.Context, companyID uuid.UUID, rec Reconciliation) error
	Dismiss(ctx context.Context, companyID, techID uuid.UUID) error
}

// RedisAlertStore keeps one hash per company keyed by technician ID.
type RedisAlertStore struct {
	client *redis.Client
}

// NewRedisAlertStore creates a Redis-backed alert store.
func NewRedisAlertStore(client *redis.Client) *RedisAlertStore {
	return &RedisAlertStore{client: client}
}

func alertsKey(companyID uuid.UUID) string {
	return fmt.Sprintf("fleet:risk_alerts:%s", companyID)
}

// Load implements AlertStore. Alerts are ordered by when they were raised.
func (s *RedisAlertStore) Load(ctx context.Context, companyID uuid.UUID) ([]Alert, error) {
	raw, err := s.client.HGetAll(ctx, alertsKey(companyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load alerts")
	}
	out := make([]Alert, 0, len(raw))
	for field, v := range raw {
		var a Alert
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, errors.Wrapf(err, "decode alert %s", field)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].TechnicianID.String() < out[j].TechnicianID.String()
		}
		return out[i].RaisedAt.Before(out[j].RaisedAt)
	})
	return out, nil
}

// Apply implements AlertStore.
func (s *RedisAlertStore) Apply(ctx context.Context, companyID uuid.UUID, rec Reconciliation) error {
	if !rec.Changed() {
		return nil
	}
	key := alertsKey(companyID)
	pipe := s.client.TxPipeline()
	for _, a := range rec.Raised {
		raw, err := json.Marshal(a)
		if err != nil {
			return errors.Wrap(err, "marshal alert")
		}
		pipe.HSet(ctx, key, a.TechnicianID.String(), raw)
	}
	if len(rec.Cleared) > 0 {
		fields := make([]string, len(rec.Cleared))
		for i, id := range rec.Cleared {
			fields[i] = id.String()
		}
		pipe.HDel(ctx, key, fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "apply alerts")
	}
	return nil
}

// Dismiss implements AlertStore.
func (s *RedisAlertStore) Dismiss(ctx context.Context, companyID, techID uuid.UUID) error {
	key := alertsKey(companyID)
	field := techID.String()

	// WATCH keeps a concurrent Apply from resurrecting a cleared alert.
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, field).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNoAlert
		}
		if err != nil {
			return errors.Wrap(err, "load alert")
		}
		var a Alert
		if err := json.Unmarshal(raw, &a); err != nil {
			return errors.Wrap(err, "decode alert")
		}
		if a.Dismissed {
			return nil
		}
		a.Dismissed = true
		updated, err := json.Marshal(a)
		if err != nil {
			return errors.Wrap(err, "marshal alert")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, updated)
			return nil
		})
		return err
	}, key)
}
