package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"whitelist/internal/admission/models"
	id "whitelist/pkg/domain"
	"whitelist/pkg/platform/sentinel"
)

// Keys share one hash tag so the scripts stay valid on a cluster.
const (
	capacitySuffix = ":{registry}:capacity"
	createdSuffix  = ":{registry}:created_at"
	membersSuffix  = ":{registry}:members"
)

// Admit result codes returned by admitScript.
const (
	admitNotDeployed = -1
	admitFull        = -2
	admitExisting    = 0
	admitCreated     = 1
)

// initScript sets capacity and creation time only when absent and returns the
// stored registry: {capacity, created_at_unix_nano, member_count, created}.
var initScript = redis.NewScript(`
local cap = redis.call('GET', KEYS[1])
if not cap then
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[2], ARGV[2])
	return {ARGV[1], ARGV[2], 0, 1}
end
return {cap, redis.call('GET', KEYS[2]), redis.call('HLEN', KEYS[3]), 0}
`)

// admitScript runs the membership check, capacity check and insert as one
// server-side step. Members are stored as identity -> "seq:admitted_unix_nano".
// Returns {code, member_value, count}.
var admitScript = redis.NewScript(`
local cap = redis.call('GET', KEYS[1])
if not cap then
	return {-1, '', 0}
end
local count = redis.call('HLEN', KEYS[2])
local existing = redis.call('HGET', KEYS[2], ARGV[1])
if existing then
	return {0, existing, count}
end
if count >= tonumber(cap) then
	return {-2, '', count}
end
local value = (count + 1) .. ':' .. ARGV[2]
redis.call('HSET', KEYS[2], ARGV[1], value)
return {1, value, count + 1}
`)

// RedisStore persists the registry in Redis.
type RedisStore struct {
	client      *redis.Client
	capacityKey string
	createdKey  string
	membersKey  string
}

// New builds a store whose keys live under prefix.
func New(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "whitelist"
	}
	return &RedisStore{
		client:      client,
		capacityKey: prefix + capacitySuffix,
		createdKey:  prefix + createdSuffix,
		membersKey:  prefix + membersSuffix,
	}
}

func (s *RedisStore) Init(ctx context.Context, capacity int, now time.Time) (models.Registry, bool, error) {
	res, err := initScript.Run(ctx, s.client,
		[]string{s.capacityKey, s.createdKey, s.membersKey},
		capacity, now.UnixNano(),
	).Slice()
	if err != nil {
		return models.Registry{}, false, fmt.Errorf("init registry: %w", err)
	}
	if len(res) != 4 {
		return models.Registry{}, false, fmt.Errorf("init registry: unexpected reply %v", res)
	}

	reg := models.Registry{Count: toInt(res[2])}
	reg.Capacity = toInt(res[0])
	reg.CreatedAt = time.Unix(0, int64(toInt(res[1]))).UTC()
	if reg.Capacity != capacity {
		return reg, false, sentinel.ErrConflict
	}
	return reg, toInt(res[3]) == 1, nil
}

func (s *RedisStore) Registry(ctx context.Context) (models.Registry, error) {
	var (
		capCmd     *redis.StringCmd
		createdCmd *redis.StringCmd
		countCmd   *redis.IntCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		capCmd = p.Get(ctx, s.capacityKey)
		createdCmd = p.Get(ctx, s.createdKey)
		countCmd = p.HLen(ctx, s.membersKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Registry{}, fmt.Errorf("get registry: %w", err)
	}

	capacity, err := capCmd.Int()
	if errors.Is(err, redis.Nil) {
		return models.Registry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Registry{}, fmt.Errorf("get registry capacity: %w", err)
	}
	created, err := createdCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Registry{}, fmt.Errorf("get registry created_at: %w", err)
	}
	return models.Registry{
		Capacity:  capacity,
		Count:     int(countCmd.Val()),
		CreatedAt: time.Unix(0, created).UTC(),
	}, nil
}

func (s *RedisStore) Admit(ctx context.Context, identity id.Identity, now time.Time) (models.Admission, error) {
	res, err := admitScript.Run(ctx, s.client,
		[]string{s.capacityKey, s.membersKey},
		identity.String(), now.UnixNano(),
	).Slice()
	if err != nil {
		return models.Admission{}, fmt.Errorf("admit: %w", err)
	}
	if len(res) != 3 {
		return models.Admission{}, fmt.Errorf("admit: unexpected reply %v", res)
	}

	switch code := toInt(res[0]); code {
	case admitNotDeployed:
		return models.Admission{}, sentinel.ErrNotFound
	case admitFull:
		return models.Admission{}, sentinel.ErrCapacityReached
	case admitExisting, admitCreated:
		value, _ := res[1].(string)
		member, err := decodeMember(identity, value)
		if err != nil {
			return models.Admission{}, err
		}
		return models.Admission{Member: member, Created: code == admitCreated, Count: toInt(res[2])}, nil
	default:
		return models.Admission{}, fmt.Errorf("admit: unexpected code %d", code)
	}
}

func (s *RedisStore) IsMember(ctx context.Context, identity id.Identity) (bool, error) {
	ok, err := s.client.HExists(ctx, s.membersKey, identity.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return 0, err
	}
	return reg.Count, nil
}

func (s *RedisStore) Members(ctx context.Context, identities []id.Identity) (map[id.Identity]bool, error) {
	out := make(map[id.Identity]bool, len(identities))
	if len(identities) == 0 {
		return out, nil
	}
	fields := make([]string, len(identities))
	for i, identity := range identities {
		fields[i] = identity.String()
	}
	values, err := s.client.HMGet(ctx, s.membersKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	for i, identity := range identities {
		out[identity] = values[i] != nil
	}
	return out, nil
}

func decodeMember(identity id.Identity, value string) (models.Member, error) {
	seqPart, tsPart, ok := strings.Cut(value, ":")
	if !ok {
		return models.Member{}, fmt.Errorf("decode member %q: malformed value", value)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil {
		return models.Member{}, fmt.Errorf("decode member seq: %w", err)
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return models.Member{}, fmt.Errorf("decode member time: %w", err)
	}
	return models.Member{Identity: identity, Seq: seq, AdmittedAt: time.Unix(0, ts).UTC()}, nil
}

// toInt reads a Lua reply element, which arrives as int64 or as a string.
func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
