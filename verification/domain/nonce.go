package domain

import (
	"context"
	"time"
)

// Nonce is a single-use, time-bound challenge token scoped to a user.
// Issuing a new nonce for the same user supersedes any prior unused one.
type Nonce struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NonceContext is the interactive context stored alongside a nonce, used
// after verification to route the result back to the originating prompt.
type NonceContext struct {
	MessageID string
	ChannelID string
}

// NonceStore issues and consumes challenge tokens. Implementations exist for
// in-memory maps (single node) and Valkey (shared between replicas).
type NonceStore interface {
	// Create generates a random token and stores it under the user's key with
	// the store's TTL, overwriting any prior record for the same user.
	Create(ctx context.Context, userID, messageID, channelID string) (string, error)

	// Context returns the routing context of the user's pending nonce.
	// Returns ErrInvalidNonce if no unexpired record exists.
	Context(ctx context.Context, userID string) (NonceContext, error)

	// Validate reports whether an unexpired record exists for the user and
	// its token equals the given one. It does not consume the nonce.
	Validate(ctx context.Context, userID, token string) (bool, error)

	// Claim atomically checks and deletes the nonce: true is returned at most
	// once per issued token. The verification path uses this instead of
	// Validate+Invalidate so no replay window exists between the two calls.
	Claim(ctx context.Context, userID, token string) (bool, error)

	// Invalidate deletes the user's record regardless of token. Called after
	// a failed attempt to close the window; missing records are not an error.
	Invalidate(ctx context.Context, userID string) error
}
