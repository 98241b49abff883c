package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/example/bookstore/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestUserStore(t *testing.T) *UserStore {
	return NewUserStore(newTestDB(t), bcrypt.MinCost)
}

// fakeSMS records sent messages and fails while err is set.
type fakeSMS struct {
	mu       sync.Mutex
	messages map[string][]string
	err      error
}

func newFakeSMS() *fakeSMS {
	return &fakeSMS{messages: make(map[string][]string)}
}

func (f *fakeSMS) Send(_ context.Context, mobile, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages[mobile] = append(f.messages[mobile], text)
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode extracts the most recent code sent to mobile.
func (f *fakeSMS) lastCode(t *testing.T, mobile string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[mobile]
	require.NotEmpty(t, msgs, "no sms sent to %s", mobile)
	code := codePattern.FindString(msgs[len(msgs)-1])
	require.NotEmpty(t, code)
	return code
}

// fakeGateway hands out fixed order ids or fails.
type fakeGateway struct {
	orderID string
	err     error
	calls   []GatewayOrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, req GatewayOrderRequest) (*GatewayOrderResponse, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &GatewayOrderResponse{ID: g.orderID, Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUpstream = errors.New("upstream unavailable")
