// Package redis stores authorization codes in Redis hashes. The single-use check
// runs as a Lua script so concurrent redemptions are serialized by the server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/fence/domain"
)

var saveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
return 1
`)

// consumeScript flips consumed when every binding matches and returns the hash,
// or 0 when the code cannot be redeemed.
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'client_id', 'redirect_uri', 'expires_at', 'consumed')
if not v[1] then
	return 0
end
if v[4] ~= '0' or v[1] ~= ARGV[1] or v[2] ~= ARGV[2] then
	return 0
end
if tonumber(v[3]) <= tonumber(ARGV[3]) then
	return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return redis.call('HGETALL', KEYS[1])
`)

// AuthCodeStore implements domain.AuthorizationCodeRepository using Redis.
type AuthCodeStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewAuthCodeStore creates a new [AuthCodeStore] instance
func NewAuthCodeStore(client redis.UniversalClient, prefix string) *AuthCodeStore {
	return &AuthCodeStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *AuthCodeStore) redisKey(codeHash string) string {
	return fmt.Sprintf("%s:authcode:%s", r.prefix, codeHash)
}

// SaveAuthCode stores the code as a hash that expires with the code.
func (r *AuthCodeStore) SaveAuthCode(ctx context.Context, code *domain.AuthCode) error {
	scopes, err := json.Marshal(code.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	args := []any{
		code.ExpiresAt.UnixMilli(),
		"client_id", code.ClientID,
		"user_id", code.UserID,
		"redirect_uri", code.RedirectURI,
		"scopes", string(scopes),
		"nonce", code.Nonce,
		"issued_at", code.IssuedAt.UnixMilli(),
		"expires_at", code.ExpiresAt.UnixMilli(),
		"consumed", boolField(code.Consumed),
	}

	created, err := saveScript.Run(ctx, r.client, []string{r.redisKey(code.CodeHash)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to set auth code in Redis: %w", err)
	}
	if created == 0 {
		return domain.ErrAuthCodeExists
	}

	return nil
}

func (r *AuthCodeStore) GetAuthCode(ctx context.Context, codeHash string) (*domain.AuthCode, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(codeHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth code from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, domain.ErrAuthCodeInvalid
	}
	return decodeAuthCode(codeHash, res)
}

func (r *AuthCodeStore) ConsumeAuthCode(ctx context.Context, req domain.RedemptionRequest) (*domain.AuthCode, error) {
	res, err := consumeScript.Run(ctx, r.client,
		[]string{r.redisKey(req.CodeHash)},
		req.ClientID, req.RedirectURI, req.Now.UnixMilli(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to consume auth code in Redis: %w", err)
	}

	pairs, ok := res.([]any)
	if !ok {
		return nil, domain.ErrAuthCodeInvalid
	}

	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}

	return decodeAuthCode(req.CodeHash, fields)
}

// DeleteExpiredAuthCodes removes codes whose expiry passed but whose key is still
// present, for example after a clock adjustment on the server.
func (r *AuthCodeStore) DeleteExpiredAuthCodes(ctx context.Context) (int64, error) {
	var (
		deleted int64
		cursor  uint64
		now     = r.now().UnixMilli()
	)
	pattern := r.redisKey("*")

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan auth codes: %w", err)
		}

		for _, key := range keys {
			res, err := r.client.HGet(ctx, key, "expires_at").Result()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Error getting expiry for auth code")
				continue
			}

			expiresAt, err := strconv.ParseInt(res, 10, 64)
			if err != nil || expiresAt > now {
				continue
			}

			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Error deleting expired auth code")
				continue
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func decodeAuthCode(codeHash string, res map[string]string) (*domain.AuthCode, error) {
	issuedAt, err := strconv.ParseInt(res["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(res["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	var scopes []string
	if raw := res["scopes"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
	}

	return &domain.AuthCode{
		CodeHash:    codeHash,
		ClientID:    res["client_id"],
		UserID:      res["user_id"],
		RedirectURI: res["redirect_uri"],
		Scopes:      scopes,
		Nonce:       res["nonce"],
		IssuedAt:    time.UnixMilli(issuedAt).UTC(),
		ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
		Consumed:    res["consumed"] == "1",
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
