package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProposalCache holds advisory proposals until a dispatcher confirms or
// declines them. Entries expire on their own.
type ProposalCache interface {
	PutProposal(ctx context.Context, companyID uuid.UUID, p Proposal) error
	GetProposal(ctx context.Context, companyID, jobID uuid.UUID) (Proposal, bool, error)
	DeleteProposal(ctx context.Context, companyID, jobID uuid.UUID) error
	ListProposals(ctx context.Context, companyID uuid.UUID) ([]Proposal, error)

	PutBatch(ctx context.Context, companyID uuid.UUID, b BatchProposal) error
	GetBatch(ctx context.Context, companyID, batchID uuid.UUID) (BatchProposal, bool, error)
	DeleteBatch(ctx context.Context, companyID, batchID uuid.UUID) error
}

// RedisProposalCache stores each proposal under its own key with a TTL and
// keeps a per-company index set for listing.
type RedisProposalCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProposalCache creates a cache whose entries live for ttl.
func NewRedisProposalCache(client *redis.Client, ttl time.Duration) *RedisProposalCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisProposalCache{client: client, ttl: ttl}
}

func proposalKey(companyID, jobID uuid.UUID) string {
	return fmt.Sprintf("fleet:proposal:%s:%s", companyID, jobID)
}

func proposalIndexKey(companyID uuid.UUID) string {
	return fmt.Sprintf("fleet:proposals:%s", companyID)
}

func batchKey(companyID, batchID uuid.UUID) string {
	return fmt.Sprintf("fleet:batch:%s:%s", companyID, batchID)
}

// PutProposal implements ProposalCache.
func (c *RedisProposalCache) PutProposal(ctx context.Context, companyID uuid.UUID, p Proposal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal proposal")
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, proposalKey(companyID, p.JobID), raw, c.ttl)
	pipe.SAdd(ctx, proposalIndexKey(companyID), p.JobID.String())
	pipe.Expire(ctx, proposalIndexKey(companyID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "store proposal")
	}
	return nil
}

// GetProposal implements ProposalCache.
func (c *RedisProposalCache) GetProposal(ctx context.Context, companyID, jobID uuid.UUID) (Proposal, bool, error) {
	raw, err := c.client.Get(ctx, proposalKey(companyID, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Proposal{}, false, nil
	}
	if err != nil {
		return Proposal{}, false, errors.Wrap(err, "load proposal")
	}
	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return Proposal{}, false, errors.Wrap(err, "decode proposal")
	}
	return p, true, nil
}

// DeleteProposal implements ProposalCache.
func (c *RedisProposalCache) DeleteProposal(ctx context.Context, companyID, jobID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, proposalKey(companyID, jobID))
	pipe.SRem(ctx, proposalIndexKey(companyID), jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "delete proposal")
	}
	return nil
}

// ListProposals implements ProposalCache. Expired entries are pruned from
// the index as they are found.
func (c *RedisProposalCache) ListProposals(ctx context.Context, companyID uuid.UUID) ([]Proposal, error) {
	ids, err := c.client.SMembers(ctx, proposalIndexKey(companyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list proposals")
	}
	out := make([]Proposal, 0, len(ids))
	for _, raw := range ids {
		jobID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		p, ok, err := c.GetProposal(ctx, companyID, jobID)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.client.SRem(ctx, proposalIndexKey(companyID), raw)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// PutBatch implements ProposalCache.
func (c *RedisProposalCache) PutBatch(ctx context.Context, companyID uuid.UUID, b BatchProposal) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshal batch")
	}
	if err := c.client.Set(ctx, batchKey(companyID, b.BatchID), raw, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "store batch")
	}
	return nil
}

// GetBatch implements ProposalCache.
func (c *RedisProposalCache) GetBatch(ctx context.Context, companyID, batchID uuid.UUID) (BatchProposal, bool, error) {
	raw, err := c.client.Get(ctx, batchKey(companyID, batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BatchProposal{}, false, nil
	}
	if err != nil {
		return BatchProposal{}, false, errors.Wrap(err, "load batch")
	}
	var b BatchProposal
	if err := json.Unmarshal(raw, &b); err != nil {
		return BatchProposal{}, false, errors.Wrap(err, "decode batch")
	}
	return b, true, nil
}

// DeleteBatch implements ProposalCache.
func (c *RedisProposalCache) DeleteBatch(ctx context.Context, companyID, batchID uuid.UUID) error {
	if err := c.client.Del(ctx, batchKey(companyID, batchID)).Err(); err != nil {
		return errors.Wrap(err, "delete batch")
	}
	return nil
}
