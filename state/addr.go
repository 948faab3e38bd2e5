package state

import (
	"fmt"
	"net"
	"strconv"
)

// Addr is a node address in canonical "host:port" form. It is used as the
// routing table key and as the identifier carried on the wire.
type Addr string

func JoinAddr(host string, port uint16) Addr {
	return Addr(net.JoinHostPort(host, strconv.Itoa(int(port))))
}

// ParseAddr validates s and returns it as an Addr.
func ParseAddr(s string) (Addr, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", fmt.Errorf("address %q has no host", s)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return "", fmt.Errorf("address %q has invalid port %q", s, port)
	}
	return JoinAddr(host, uint16(p)), nil
}

func (a Addr) Host() string {
	host, _, _ := net.SplitHostPort(string(a))
	return host
}

func (a Addr) Port() uint16 {
	_, port, _ := net.SplitHostPort(string(a))
	p, _ := strconv.ParseUint(port, 10, 16)
	return uint16(p)
}

func (a Addr) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", string(a))
}

func (a Addr) String() string {
	return string(a)
}
