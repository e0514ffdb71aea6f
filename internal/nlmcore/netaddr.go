package nlmcore

import "net"

// PeerAddr identifies a remote peer by transport and address, independent
// of the ephemeral source port a client happens to be using this time.
type PeerAddr struct {
	Netid string // e.g. "tcp", "udp", "tcp6", "udp6"
	Addr  string // host[:port], port ignored for comparison/keying
}

// hostAndFamily splits the host portion out of Addr and reports whether the
// address looks like an IPv6 literal, so two addresses on different
// families never compare equal even if their textual host happens to
// collide (it won't in practice, but the comparison is family-aware per
// spec).
func hostAndFamily(addr string) (host string, isV6 bool) {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		h = addr
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return h, false
	}
	return ip.String(), ip.To4() == nil
}

// key returns the comparison key used to index a host by (netid, address),
// ignoring port so a client reconnecting from a new ephemeral port is
// recognized as the same peer.
func (p PeerAddr) key() string {
	host, isV6 := hostAndFamily(p.Addr)
	family := "4"
	if isV6 {
		family = "6"
	}
	return p.Netid + "|" + family + "|" + host
}

// Equal reports whether two peer addresses name the same host over the
// same transport, ignoring port.
func (p PeerAddr) Equal(other PeerAddr) bool {
	return p.key() == other.key()
}
