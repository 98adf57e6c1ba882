package identity

import (
	"fmt"
	"net/netip"
)

// ParseSubnet parses CIDR text into a masked netip.Prefix. Masking
// normalizes spellings like 10.0.1.5/24 to 10.0.1.0/24 so that two
// references to the same block always compare equal.
func ParseSubnet(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parse subnet %q: %w", s, err)
	}
	return p.Masked(), nil
}

// MustParseSubnet is ParseSubnet for test fixtures and constants;
// it panics on invalid input.
func MustParseSubnet(s string) netip.Prefix {
	p, err := ParseSubnet(s)
	if err != nil {
		panic(err)
	}
	return p
}
