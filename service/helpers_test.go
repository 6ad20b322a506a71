package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newHS256Codec(t *testing.T, clock Clock) *TokenCodec {
	t.Helper()
	keys, err := NewKeyProvider("HS256", SymmetricKey{Secret: []byte(testSecret)})
	require.NoError(t, err)
	return NewTokenCodec(keys, clock)
}
