package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/tokengate/tokengate/infrastructure/valkey"
	"github.com/tokengate/tokengate/verification/domain"
)

// Lua script for atomic claim (only delete if the stored token matches).
// Mirrors the compare-and-delete shape used for distributed locks.
const claimNonceScript = `
local raw = redis.call("get", KEYS[1])
if not raw then
	return 0
end
local data = cjson.decode(raw)
if data["token"] == ARGV[1] then
	redis.call("del", KEYS[1])
	return 1
end
return 0
`

// ValkeyNonceStore implements domain.NonceStore on Valkey, so challenges
// survive restarts and are shared between replicas. TTL enforcement is
// delegated to Valkey key expiry.
type ValkeyNonceStore struct {
	client *valkey.Client
	ttl    time.Duration
	prefix string
}

// NewValkeyNonceStore creates a store on an existing Valkey client.
func NewValkeyNonceStore(client *valkey.Client, ttl time.Duration) *ValkeyNonceStore {
	return &ValkeyNonceStore{
		client: client,
		ttl:    ttl,
		prefix: client.Key("nonce") + ":",
	}
}

func (s *ValkeyNonceStore) key(userID string) string {
	return s.prefix + userID
}

func (s *ValkeyNonceStore) inner() valkeylib.Client {
	return s.client.Raw()
}

func (s *ValkeyNonceStore) Create(ctx context.Context, userID, messageID, channelID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	entry := domain.Nonce{
		Token:     token,
		UserID:    userID,
		MessageID: messageID,
		ChannelID: channelID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal nonce: %w", err)
	}

	cmd := s.inner().B().Set().
		Key(s.key(userID)).
		Value(string(data)).
		Ex(s.ttl).
		Build()

	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return "", fmt.Errorf("failed to save nonce: %w", err)
	}
	return token, nil
}

func (s *ValkeyNonceStore) get(ctx context.Context, userID string) (*domain.Nonce, error) {
	cmd := s.inner().B().Get().Key(s.key(userID)).Build()
	data, err := s.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	var entry domain.Nonce
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nonce: %w", err)
	}
	return &entry, nil
}

func (s *ValkeyNonceStore) Context(ctx context.Context, userID string) (domain.NonceContext, error) {
	entry, err := s.get(ctx, userID)
	if err != nil {
		return domain.NonceContext{}, err
	}
	if entry == nil {
		return domain.NonceContext{}, domain.ErrInvalidNonce
	}
	return domain.NonceContext{MessageID: entry.MessageID, ChannelID: entry.ChannelID}, nil
}

func (s *ValkeyNonceStore) Validate(ctx context.Context, userID, token string) (bool, error) {
	entry, err := s.get(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Token == token, nil
}

// Claim runs the compare-and-delete script server-side, so the check and the
// delete cannot interleave with a concurrent claim for the same user.
func (s *ValkeyNonceStore) Claim(ctx context.Context, userID, token string) (bool, error) {
	cmd := s.inner().B().Eval().
		Script(claimNonceScript).
		Numkeys(1).
		Key(s.key(userID)).
		Arg(token).
		Build()

	res, err := s.inner().Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to claim nonce: %w", err)
	}
	return res == 1, nil
}

func (s *ValkeyNonceStore) Invalidate(ctx context.Context, userID string) error {
	cmd := s.inner().B().Del().Key(s.key(userID)).Build()
	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate nonce: %w", err)
	}
	return nil
}
