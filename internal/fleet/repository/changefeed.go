package repository

import (
	"context"
	"encoding/json"
	"log/slog"

	"dispatch_backend/platform/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const changeChannelPrefix = "fleet:changes:"

// ChangeSet is the set of documents one commit touched within one company.
type ChangeSet struct {
	CompanyID uuid.UUID `json:"companyId"`
	Changes   []Change  `json:"changes"`
}

// HasCollection reports whether any change touches the named collection.
func (c ChangeSet) HasCollection(name string) bool {
	for _, ch := range c.Changes {
		if ch.Collection == name {
			return true
		}
	}
	return false
}

// ChangePublisher announces committed changes.
type ChangePublisher interface {
	Publish(ctx context.Context, changes []Change) error
}

// ChangeFeed is a Redis pub/sub channel per company carrying ChangeSets.
type ChangeFeed struct {
	rdb *redis.Client
}

// NewChangeFeed creates a feed over the given client.
func NewChangeFeed(rdb *redis.Client) *ChangeFeed {
	return &ChangeFeed{rdb: rdb}
}

// Publish groups changes by company and publishes one message per company.
func (f *ChangeFeed) Publish(ctx context.Context, changes []Change) error {
	byCompany := make(map[uuid.UUID][]Change)
	order := make([]uuid.UUID, 0)
	for _, ch := range changes {
		if _, ok := byCompany[ch.CompanyID]; !ok {
			order = append(order, ch.CompanyID)
		}
		byCompany[ch.CompanyID] = append(byCompany[ch.CompanyID], ch)
	}

	for _, companyID := range order {
		payload, err := json.Marshal(ChangeSet{CompanyID: companyID, Changes: byCompany[companyID]})
		if err != nil {
			return errors.Wrap(err, "encode change set")
		}
		if err := f.rdb.Publish(ctx, changeChannelPrefix+companyID.String(), payload).Err(); err != nil {
			return errors.Wrap(err, "publish change set")
		}
	}
	return nil
}

// Subscription receives ChangeSets for every company.
type Subscription struct {
	ps *redis.PubSub
}

// Listen subscribes to all company channels. It returns once Redis has
// confirmed the subscription, so nothing published afterwards is missed.
func (f *ChangeFeed) Listen(ctx context.Context) (*Subscription, error) {
	ps := f.rdb.PSubscribe(ctx, changeChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribe to change feed")
	}
	return &Subscription{ps: ps}, nil
}

// Next blocks until the next ChangeSet arrives or ctx ends.
func (s *Subscription) Next(ctx context.Context) (ChangeSet, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return ChangeSet{}, err
	}
	var set ChangeSet
	if err := json.Unmarshal([]byte(msg.Payload), &set); err != nil {
		return ChangeSet{}, errors.Wrapf(err, "decode change set on %s", msg.Channel)
	}
	return set, nil
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

// FeedStore is a Store that announces every successful commit. A failed
// announcement is logged; the commit itself already happened.
type FeedStore struct {
	Store
	feed ChangePublisher
	log  *logger.Logger
}

// WithChangeFeed wraps store so commits are published on feed.
func WithChangeFeed(store Store, feed ChangePublisher, log *logger.Logger) *FeedStore {
	if log == nil {
		log = logger.Nop()
	}
	return &FeedStore{Store: store, feed: feed, log: log}
}

// Commit implements Committer.
func (s *FeedStore) Commit(ctx context.Context, b *Batch) error {
	if err := s.Store.Commit(ctx, b); err != nil {
		return err
	}
	if err := s.feed.Publish(ctx, b.Changes()); err != nil {
		s.log.Warn("change feed publish failed", slog.String("error", err.Error()))
	}
	return nil
}
