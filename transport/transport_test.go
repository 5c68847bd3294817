package transport

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLoopbackEntity(t *testing.T) (*Entity, net.PacketConn) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	ent := NewEntity(conn, Config{
		InitialRTT:       20 * time.Millisecond,
		ScanInterval:     2 * time.Millisecond,
		TimeWaitDuration: 40 * time.Millisecond,
		MaxRetransmits:   5,
	})
	ent.Start()
	t.Cleanup(func() {
		ent.Close()
		conn.Close()
	})
	return ent, conn
}

func udpAddrPort(t *testing.T, conn net.PacketConn) netip.AddrPort {
	t.Helper()
	ua := conn.LocalAddr().(*net.UDPAddr)
	return ua.AddrPort()
}

func TestHandshakeAndDataRoundTrip(t *testing.T) {
	server, serverConn := newLoopbackEntity(t)
	client, _ := newLoopbackEntity(t)

	lfd, err := server.Create()
	require.NoError(t, err)
	require.NoError(t, server.Bind(lfd, 15000))
	require.NoError(t, server.Listen(lfd, 4))

	cfd, err := client.Create()
	require.NoError(t, err)

	acceptErrCh := make(chan error, 1)
	var sfd int
	go func() {
		var aerr error
		sfd, aerr = acceptOne(server, lfd)
		acceptErrCh <- aerr
	}()

	serverAddr := udpAddrPort(t, serverConn)
	require.NoError(t, client.Connect(cfd, serverAddr, 15000))
	require.NoError(t, <-acceptErrCh)

	require.Equal(t, StateEstablished, client.mustCCB(cfd).State())
	require.Equal(t, StateEstablished, server.mustCCB(sfd).State())

	n, err := client.Send(cfd, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 64)
	n, err = server.Recv(sfd, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	n, err = server.Send(sfd, []byte("pong"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = client.Recv(cfd, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf[:n]))

	// The client's Shutdown returns only after the server's own FIN, so
	// the server shuts down as soon as it reads EOF.
	go func() {
		sbuf := make([]byte, 16)
		if n, err := server.Recv(sfd, sbuf); err == nil && n == 0 {
			server.Shutdown(sfd, 0)
		}
	}()

	require.NoError(t, client.Shutdown(cfd, 0))
	require.NoError(t, client.Close(cfd))
}

// acceptOne is a tiny helper to turn Entity.Accept's three return values
// into the shape the round trip test above wants to assert on.
func acceptOne(ent *Entity, lfd int) (int, error) {
	fd, _, err := ent.Accept(lfd)
	return fd, err
}

func (e *Entity) mustCCB(fd int) *CCB {
	c, err := e.lookup(fd)
	if err != nil {
		panic(err)
	}
	return c
}

func TestGracefulShutdownBothSides(t *testing.T) {
	server, serverConn := newLoopbackEntity(t)
	client, _ := newLoopbackEntity(t)

	lfd, _ := server.Create()
	require.NoError(t, server.Bind(lfd, 15100))
	require.NoError(t, server.Listen(lfd, 4))

	cfd, _ := client.Create()
	acceptDone := make(chan int, 1)
	go func() {
		fd, _, _ := server.Accept(lfd)
		acceptDone <- fd
	}()

	require.NoError(t, client.Connect(cfd, udpAddrPort(t, serverConn), 15100))
	sfd := <-acceptDone

	// Client initiates shutdown; server should observe EOF (n==0) on Recv
	// once the peer's FIN has been processed, then shut down itself.
	go func() {
		buf := make([]byte, 16)
		n, err := server.Recv(sfd, buf)
		if err == nil && n == 0 {
			server.Shutdown(sfd, 0)
		}
	}()

	require.NoError(t, client.Shutdown(cfd, 0))
}
