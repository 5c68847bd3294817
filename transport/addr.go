package transport

import (
	"net"
	"net/netip"
)

// udpAddr adapts a netip.AddrPort to the net.Addr the datagram endpoint's
// WriteTo expects. net.PacketConn implementations (notably *net.UDPConn)
// type-assert their WriteTo argument to *net.UDPAddr, so a generic
// net.Addr wrapper is not enough.
func udpAddr(ap netip.AddrPort) net.Addr {
	return net.UDPAddrFromAddrPort(ap)
}
