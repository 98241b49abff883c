package services

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// MaxOTPAttempts is how many wrong codes a challenge absorbs before it is burned.
const MaxOTPAttempts = 5

// Challenge is a pending OTP. Only the code's hash is kept.
type Challenge struct {
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// ChallengeStore keeps at most one live challenge per key.
type ChallengeStore interface {
	// Put stores c under key, replacing any earlier challenge.
	Put(ctx context.Context, key string, c Challenge) error
	// Consume deletes and reports true only when a challenge for key exists,
	// has not expired at now and carries codeHash. An expired challenge is removed,
	// and a challenge is removed after MaxOTPAttempts wrong codes.
	Consume(ctx context.Context, key, codeHash string, now time.Time) (bool, error)
	// Discard deletes the challenge for key only if it still carries codeHash.
	Discard(ctx context.Context, key, codeHash string) error
}

// MemoryChallengeStore is a ChallengeStore for single-instance deployments.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryChallengeStore constructs an empty MemoryChallengeStore.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]Challenge)}
}

func (s *MemoryChallengeStore) Put(_ context.Context, key string, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[key] = c
	return nil
}

func (s *MemoryChallengeStore) Consume(_ context.Context, key, codeHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[key]
	if !ok {
		return false, nil
	}
	if !now.Before(c.ExpiresAt) {
		delete(s.challenges, key)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(c.CodeHash), []byte(codeHash)) != 1 {
		c.Attempts++
		if c.Attempts >= MaxOTPAttempts {
			delete(s.challenges, key)
		} else {
			s.challenges[key] = c
		}
		return false, nil
	}

	delete(s.challenges, key)
	return true, nil
}

func (s *MemoryChallengeStore) Discard(_ context.Context, key, codeHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.challenges[key]; ok && c.CodeHash == codeHash {
		delete(s.challenges, key)
	}
	return nil
}
