package session

import (
	"net/netip"
	"strings"
)

// validIPOrEmpty returns the canonical form of raw, or "" when raw is not an IP.
func validIPOrEmpty(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
