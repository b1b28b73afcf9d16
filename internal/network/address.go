package network

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/David-Antunes/klonet/api"
)

// ParseCIDR splits an IPv4 CIDR such as 192.168.1.1/24 into the address and
// its dotted netmask.
func ParseCIDR(cidr string) (ip string, netmask string, err error) {
	parts := strings.Split(cidr, "/")
	if len(parts) != 2 {
		return "", "", &api.InvalidAddressError{Address: cidr}
	}
	prefix, err := strconv.Atoi(parts[1])
	if err != nil || prefix < 0 || prefix > 32 {
		return "", "", &api.InvalidAddressError{Address: cidr}
	}
	addr, err := netip.ParseAddr(parts[0])
	if err != nil || !addr.Is4() || addr.As4()[0] == 0 {
		return "", "", &api.InvalidAddressError{Address: cidr}
	}
	return addr.String(), Netmask(prefix), nil
}

func ValidCIDR(cidr string) bool {
	_, _, err := ParseCIDR(cidr)
	return err == nil
}

// Netmask converts a prefix length to dotted notation, 24 -> 255.255.255.0.
func Netmask(prefix int) string {
	return net.IP(net.CIDRMask(prefix, 32)).String()
}
