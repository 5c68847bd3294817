// Command simptcpc is a minimal SimpTCP client: it connects to a
// simptcpd instance, sends a single message, prints the echoed reply,
// and performs a graceful shutdown.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"

	"simptcp/transport"
)

func main() {
	serverUDPAddr := flag.String("server", "127.0.0.1:9100", "UDP address of the simptcpd instance")
	simPort := flag.Uint("sim-port", 15000, "SimpTCP port the server is listening on")
	message := flag.String("message", "hello, simptcp", "message to send")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	raddr, err := net.ResolveUDPAddr("udp", *serverUDPAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: resolve server address:", err)
		os.Exit(1)
	}
	remoteUDP, ok := netip.AddrFromSlice(raddr.IP.To4())
	if !ok {
		fmt.Fprintln(os.Stderr, "simptcpc: server address must be IPv4")
		os.Exit(1)
	}

	conn, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: open socket:", err)
		os.Exit(1)
	}
	defer conn.Close()

	ent := transport.NewEntity(conn, transport.Config{Logger: logger})
	ent.Start()
	defer ent.Close()

	fd, err := ent.Create()
	if err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: create:", err)
		os.Exit(1)
	}

	target := netip.AddrPortFrom(remoteUDP, uint16(raddr.Port))
	if err := ent.Connect(fd, target, uint16(*simPort)); err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: connect:", err)
		os.Exit(1)
	}
	logger.Info("connected", slog.Int("fd", fd))

	if _, err := ent.Send(fd, []byte(*message)); err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: send:", err)
		os.Exit(1)
	}

	buf := make([]byte, 1500)
	n, err := ent.Recv(fd, buf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: recv:", err)
		os.Exit(1)
	}
	fmt.Printf("reply: %q\n", buf[:n])

	if err := ent.Shutdown(fd, 0); err != nil {
		fmt.Fprintln(os.Stderr, "simptcpc: shutdown:", err)
		os.Exit(1)
	}
	ent.Close(fd)
}
