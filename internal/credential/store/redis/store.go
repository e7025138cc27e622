// Package redis stores credential records in Redis: one JSON value per
// record plus list indexes by recipient and issuer.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"credreg/internal/credential/models"
	id "credreg/pkg/domain"
	"credreg/pkg/platform/sentinel"
)

const (
	recordKeyPrefix    = "credreg:credential:"
	recipientKeyPrefix = "credreg:recipient:"
	issuerKeyPrefix    = "credreg:issuer:"

	maxStatusAttempts = 5
)

// RedisStore is a Redis-backed credential store for deployments that share
// state across instances without PostgreSQL.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(credentialID id.CredentialID) string {
	return recordKeyPrefix + credentialID.String()
}

// putScript commits a record and both index entries in one step. Index keys
// are type-checked before any write, so a failure leaves nothing behind.
// Returns 1 when created, 0 when the id already exists.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 2, 3 do
  local t = redis.call('TYPE', KEYS[i]).ok
  if t ~= 'none' and t ~= 'list' then
    return redis.error_reply('WRONGTYPE credential index ' .. KEYS[i] .. ' holds ' .. t)
  end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[2])
return 1
`)

// Put writes the record and appends its id to the recipient and issuer
// indexes atomically. Returns sentinel.ErrConflict if the id exists.
func (s *RedisStore) Put(ctx context.Context, record models.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	keys := []string{
		recordKey(record.ID),
		recipientKeyPrefix + record.RecipientDID.String(),
		issuerKeyPrefix + record.IssuerDID.String(),
	}
	created, err := putScript.Run(ctx, s.client, keys, payload, record.ID.String()).Int64()
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	if created == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, credentialID id.CredentialID) (*models.Record, error) {
	payload, err := s.client.Get(ctx, recordKey(credentialID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return decode(payload)
}

func (s *RedisStore) ListByRecipient(ctx context.Context, recipient id.DID, filter models.ListFilter) ([]models.Record, error) {
	return s.list(ctx, recipientKeyPrefix+recipient.String(), filter)
}

func (s *RedisStore) ListByIssuer(ctx context.Context, issuer id.DID) ([]models.Record, error) {
	return s.list(ctx, issuerKeyPrefix+issuer.String(), models.ListFilter{IncludeRevoked: true})
}

func (s *RedisStore) list(ctx context.Context, indexKey string, filter models.ListFilter) ([]models.Record, error) {
	ids, err := s.client.LRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read credential index: %w", err)
	}
	out := []models.Record{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, raw := range ids {
		keys[i] = recordKeyPrefix + raw
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	for _, v := range values {
		payload, ok := v.(string)
		if !ok {
			continue
		}
		record, err := decode([]byte(payload))
		if err != nil {
			return nil, err
		}
		if filter.Matches(*record) {
			out = append(out, *record)
		}
	}
	return out, nil
}

// SetStatus updates the record under WATCH so concurrent status changes to
// the same id serialize. Conflicting transactions are retried.
func (s *RedisStore) SetStatus(ctx context.Context, credentialID id.CredentialID, status models.Status) (*models.Record, bool, error) {
	key := recordKey(credentialID)
	var (
		result  *models.Record
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		record, err := decode(payload)
		if err != nil {
			return err
		}
		if !record.Status.CanTransitionTo(status) {
			return sentinel.ErrInvalidState
		}
		result, changed = record, false
		if record.Status == status {
			return nil
		}
		record.Status = status
		updated, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}

	for range maxStatusAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrInvalidState) {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("update credential status: %w", err)
		}
		return result, changed, nil
	}
	return nil, false, fmt.Errorf("update credential status: %w", sentinel.ErrUnavailable)
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decode(payload []byte) (*models.Record, error) {
	var record models.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &record, nil
}
