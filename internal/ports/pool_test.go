package ports

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadRanges(t *testing.T) {
	cases := []struct {
		name     string
		min, max int
	}{
		{name: "empty", min: 5000, max: 5000},
		{name: "inverted", min: 5001, max: 5000},
		{name: "zero start", min: 0, max: 10},
		{name: "beyond 16 bits", min: 65000, max: 70000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.min, tc.max)
			require.Error(t, err)
		})
	}
}

func TestAcquire_AscendingThenExhausted(t *testing.T) {
	p, err := New(7000, 7003)
	require.NoError(t, err)
	require.Equal(t, 3, p.Capacity())

	for want := 7000; want < 7003; want++ {
		got, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = p.Acquire()
	require.ErrorIs(t, err, ErrNoPorts)
	assert.Equal(t, 3, p.InUse())
}

func TestRelease_PortIsImmediatelyReusable(t *testing.T) {
	p, err := New(7000, 7003)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := p.Acquire()
		require.NoError(t, err)
	}

	p.Release(7001)
	assert.False(t, p.Leased(7001))

	got, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 7001, got)
}

func TestRelease_Idempotent(t *testing.T) {
	p, err := New(7000, 7010)
	require.NoError(t, err)

	p.Release(7005)
	p.Release(7005)
	assert.Equal(t, 0, p.InUse())

	port, err := p.Acquire()
	require.NoError(t, err)
	p.Release(port)
	p.Release(port)
	assert.Equal(t, 0, p.InUse())
}

func TestClaim(t *testing.T) {
	p, err := New(7000, 7010)
	require.NoError(t, err)

	require.NoError(t, p.Claim(7004))
	assert.True(t, p.Leased(7004))
	require.ErrorIs(t, p.Claim(7004), ErrPortInUse)
	require.ErrorIs(t, p.Claim(6999), ErrOutOfRange)
	require.ErrorIs(t, p.Claim(7010), ErrOutOfRange)

	// Acquire skips the claimed port.
	for want := 7000; want < 7004; want++ {
		got, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 7005, got)
}

func TestAcquire_ConcurrentNeverDoubleLeases(t *testing.T) {
	p, err := New(9000, 9100)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]int)
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := p.Acquire()
			if err != nil {
				return
			}
			mu.Lock()
			seen[port]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, 100)
	for port, n := range seen {
		assert.Equal(t, 1, n, "port %d leased %d times", port, n)
	}
}
