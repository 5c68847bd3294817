package transport

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// dropFirstN wraps a net.PacketConn and silently discards the first n
// datagrams written through it, used to force the retransmit timer to
// fire (spec.md §8's "retransmission on loss" scenario) without needing
// a real lossy network.
type dropFirstN struct {
	net.PacketConn
	remaining int64
}

func (d *dropFirstN) WriteTo(b []byte, addr net.Addr) (int, error) {
	if atomic.AddInt64(&d.remaining, -1) >= 0 {
		return len(b), nil // pretend it was sent
	}
	return d.PacketConn.WriteTo(b, addr)
}

func TestRetransmitOnLoss(t *testing.T) {
	rawServer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { rawServer.Close() })
	server := NewEntity(rawServer, Config{
		InitialRTT:       10 * time.Millisecond,
		ScanInterval:     2 * time.Millisecond,
		TimeWaitDuration: 30 * time.Millisecond,
		MaxRetransmits:   5,
	})
	server.Start()
	t.Cleanup(func() { server.Close() })

	rawClient, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { rawClient.Close() })
	lossyClient := &dropFirstN{PacketConn: rawClient, remaining: 1} // drop the first SYN
	client := NewEntity(lossyClient, Config{
		InitialRTT:       10 * time.Millisecond,
		ScanInterval:     2 * time.Millisecond,
		TimeWaitDuration: 30 * time.Millisecond,
		MaxRetransmits:   5,
	})
	client.Start()
	t.Cleanup(func() { client.Close() })

	lfd, _ := server.Create()
	require.NoError(t, server.Bind(lfd, 15300))
	require.NoError(t, server.Listen(lfd, 4))

	cfd, _ := client.Create()
	serverAddr := udpAddrPort(t, rawServer)

	done := make(chan error, 1)
	go func() { done <- client.Connect(cfd, serverAddr, 15300) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("connect did not complete after simulated loss")
	}

	stats := client.mustCCB(cfd).Snapshot()
	require.GreaterOrEqual(t, stats.RetransmitCount, uint64(1))
}
