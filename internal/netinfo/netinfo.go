package netinfo

import (
	"net"
	"strconv"
	"strings"
)

// WildcardIPv4 binds every local IPv4 interface.
const WildcardIPv4 = "0.0.0.0"

// LocalIPv4 returns the first non-loopback IPv4 address found on the host's
// interfaces, or WildcardIPv4 when there is none.
func LocalIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return WildcardIPv4
	}
	return firstIPv4(addrs)
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return WildcardIPv4
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 address with every octet
// in 0..255 written without leading zeros ("10.0.0.1" but not "10.00.0.1").
func ValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
		if part != strconv.Itoa(n) {
			return false
		}
	}
	return true
}
