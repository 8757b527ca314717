package network

import (
	"fmt"
	"net"

	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
)

// DefaultNet returns the operating system network.
func DefaultNet() (transport.Net, error) {
	nw, err := stdnet.NewNet()
	if err != nil {
		return nil, fmt.Errorf("failed to create OS network: %w", err)
	}
	return nw, nil
}

// Listen binds the UDP socket the measurement traffic arrives on.
func Listen(nw transport.Net, address string, port int) (transport.UDPConn, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("invalid listen address %q", address)
	}

	conn, err := nw.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP to %s:%d: %w", address, port, err)
	}
	return conn, nil
}

// udpAddr converts a peer address returned by ReadFrom.
func udpAddr(addr net.Addr) (*net.UDPAddr, error) {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return ua, nil
	}
	return net.ResolveUDPAddr("udp4", addr.String())
}
