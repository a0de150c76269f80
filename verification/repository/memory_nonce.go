package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/tokengate/tokengate/verification/domain"
)

const nonceTokenBytes = 32

// MemoryNonceStore implementa NonceStore usando un map en memoria.
// Esta es la implementación por defecto y más simple; los challenges
// pendientes se pierden al reiniciar el servidor (el usuario pide otro).
type MemoryNonceStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*domain.Nonce
	now     func() time.Time
}

// NewMemoryNonceStore crea un nuevo store en memoria con el TTL dado.
// Inicia automáticamente un goroutine que elimina registros expirados.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	ms := &MemoryNonceStore{
		ttl:     ttl,
		entries: make(map[string]*domain.Nonce),
		now:     time.Now,
	}
	go ms.cleanupLoop()
	return ms
}

func generateToken() (string, error) {
	buf := make([]byte, nonceTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (ms *MemoryNonceStore) Create(ctx context.Context, userID, messageID, channelID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	now := ms.now()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Overwrite-by-key: a new challenge supersedes any prior unused one.
	ms.entries[userID] = &domain.Nonce{
		Token:     token,
		UserID:    userID,
		MessageID: messageID,
		ChannelID: channelID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ms.ttl),
	}
	return token, nil
}

func (ms *MemoryNonceStore) Context(ctx context.Context, userID string) (domain.NonceContext, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[userID]
	if !ok || ms.now().After(e.ExpiresAt) {
		return domain.NonceContext{}, domain.ErrInvalidNonce
	}
	return domain.NonceContext{MessageID: e.MessageID, ChannelID: e.ChannelID}, nil
}

func (ms *MemoryNonceStore) Validate(ctx context.Context, userID, token string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[userID]
	if !ok || ms.now().After(e.ExpiresAt) {
		return false, nil
	}
	return e.Token == token, nil
}

// Claim checks and deletes under one lock, so a token can be claimed at most
// once even under concurrent requests for the same user.
func (ms *MemoryNonceStore) Claim(ctx context.Context, userID, token string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[userID]
	if !ok || ms.now().After(e.ExpiresAt) || e.Token != token {
		return false, nil
	}
	delete(ms.entries, userID)
	return true, nil
}

func (ms *MemoryNonceStore) Invalidate(ctx context.Context, userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.entries, userID)
	return nil
}

func (ms *MemoryNonceStore) cleanupLoop() {
	interval := ms.ttl
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := ms.now()
		ms.mu.Lock()
		for userID, e := range ms.entries {
			if now.After(e.ExpiresAt) {
				delete(ms.entries, userID)
			}
		}
		ms.mu.Unlock()
	}
}
