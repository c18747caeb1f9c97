package transport

import (
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/danmuck/treenet/internal/protocol"
	"github.com/danmuck/treenet/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DialTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.Backoff = BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	cfg.Node = "test"
	return cfg
}

func startRegistry(t *testing.T) (*Registry, protocol.Address) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := New(testConfig())
	require.NoError(t, r.Serve(ln))
	t.Cleanup(func() { _ = r.Close() })
	addr, err := protocol.ParseHostPort(ln.Addr().String())
	require.NoError(t, err)
	return r, addr
}

func closedPort(t *testing.T) protocol.Address {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr, err := protocol.ParseHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	return addr
}

func TestRegistryDeliversFramesInOrder(t *testing.T) {
	testlog.Start(t)
	a, aAddr := startRegistry(t)
	b, bAddr := startRegistry(t)

	require.NoError(t, a.AddPeer(bAddr, false))
	for _, text := range []string{"one", "two", "three"} {
		raw, err := protocol.EncodeBody(aAddr, protocol.Message{Text: text})
		require.NoError(t, err)
		require.NoError(t, a.Enqueue(bAddr, raw))
	}

	var got []string
	require.Eventually(t, func() bool {
		if err := a.Flush(bAddr); err != nil {
			return false
		}
		for _, raw := range b.DrainInbound() {
			p, err := protocol.Decode(raw)
			if err != nil || p.Source != aAddr {
				return false
			}
			got = append(got, string(p.Body))
		}
		return len(got) == 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, got)

	peers := a.Peers()
	require.Len(t, peers, 1)
	assert.True(t, peers[0].Connected)
	assert.Zero(t, peers[0].Pending)
	assert.Empty(t, b.DrainInbound())
}

func TestFlushAllReportsFailedDial(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.MaxConnectAttempts = 2
	r := New(cfg)
	defer r.Close()

	dead := closedPort(t)
	require.NoError(t, r.AddPeer(dead, false))
	require.NoError(t, r.Enqueue(dead, []byte("dropped")))

	var failed map[protocol.Address]error
	require.Eventually(t, func() bool {
		failed = r.FlushAll()
		return len(failed) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, failed[dead], ErrDialFailed)
	assert.Empty(t, r.Peers(), "failed entry is removed")
	assert.ErrorIs(t, r.Enqueue(dead, []byte("x")), ErrUnknownPeer)
}

func TestAddPeerUpgradesControlChannel(t *testing.T) {
	testlog.Start(t)
	r := New(testConfig())
	defer r.Close()
	addr := closedPort(t)

	require.NoError(t, r.AddPeer(addr, true))
	control, ok := r.IsControl(addr)
	require.True(t, ok)
	assert.True(t, control)

	require.NoError(t, r.AddPeer(addr, false))
	control, _ = r.IsControl(addr)
	assert.False(t, control)

	require.NoError(t, r.AddPeer(addr, true))
	control, _ = r.IsControl(addr)
	assert.False(t, control, "tree link never downgrades")

	r.RemovePeer(addr)
	r.RemovePeer(addr)
	_, ok = r.IsControl(addr)
	assert.False(t, ok)
}

func TestEnqueueAndFlushUnknownPeer(t *testing.T) {
	testlog.Start(t)
	r := New(testConfig())
	defer r.Close()
	addr := protocol.MustParseHostPort("127.0.0.1:1")
	assert.ErrorIs(t, r.Enqueue(addr, []byte("x")), ErrUnknownPeer)
	assert.ErrorIs(t, r.Flush(addr), ErrUnknownPeer)
	assert.Empty(t, r.FlushAll())
}

func TestCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	r, _ := startRegistry(t)
	require.NoError(t, r.AddPeer(closedPort(t), false))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.AddPeer(protocol.MustParseHostPort("127.0.0.1:2"), false), ErrClosed)
}

func TestInboundQueueIsBounded(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.InboundCapacity = 2
	r := New(cfg)
	defer r.Close()
	r.pushInbound([]byte("a"))
	r.pushInbound([]byte("b"))
	r.pushInbound([]byte("c"))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, r.DrainInbound())
	assert.Nil(t, r.DrainInbound())
}

func TestRedialDelayGrowsToCap(t *testing.T) {
	testlog.Start(t)
	b := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{6, 5 * time.Second},
		{40, 5 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, b.redialDelay(tc.attempt, 0, nil), "attempt %d", tc.attempt)
	}
}

func TestRedialDelayCappedByEngineTick(t *testing.T) {
	testlog.Start(t)
	b := BackoffConfig{InitialDelay: 250 * time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, 250*time.Millisecond, b.redialDelay(1, 2*time.Second, nil))
	assert.Equal(t, time.Second, b.redialDelay(3, 2*time.Second, nil))
	assert.Equal(t, 2*time.Second, b.redialDelay(5, 2*time.Second, nil))
	assert.Equal(t, 100*time.Millisecond, b.redialDelay(1, 100*time.Millisecond, nil), "tick below the first delay")

	b.MaxDelay = 0
	assert.Equal(t, 2*time.Second, b.redialDelay(9, 2*time.Second, nil))
}

func TestRedialDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	b := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second, Jitter: true}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		got := b.redialDelay(3, 0, rng)
		if got < 200*time.Millisecond || got >= 600*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ListenAddr: "127.0.0.1:7000"}.WithDefaults()
	d := DefaultConfig()
	assert.Equal(t, d.DialTimeout, cfg.DialTimeout)
	assert.Equal(t, d.Limits, cfg.Limits)
	assert.Equal(t, "127.0.0.1:7000", cfg.Node)
}
