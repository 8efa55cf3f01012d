// Package ipv4 converts between dotted-quad IPv4 strings and their uint32 form.
package ipv4

import (
	"fmt"
	"net/netip"

	"netfinder/internal/model"
)

// Parse returns the integer value of a dotted-quad address. Octets are one to
// three decimal digits; leading zeros are read as decimal.
func Parse(s string) (uint32, error) {
	var (
		value  uint32
		octet  uint32
		digits int
		parts  int
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
			if digits > 3 {
				return 0, invalid(s, "octet too long")
			}
			octet = octet*10 + uint32(c-'0')
			if octet > 255 {
				return 0, invalid(s, "octet out of range")
			}
		case c == '.':
			if digits == 0 {
				return 0, invalid(s, "empty octet")
			}
			parts++
			if parts > 3 {
				return 0, invalid(s, "too many octets")
			}
			value = value<<8 | octet
			octet, digits = 0, 0
		default:
			return 0, invalid(s, fmt.Sprintf("unexpected character %q", c))
		}
	}

	if digits == 0 || parts != 3 {
		return 0, invalid(s, "expected four octets")
	}

	return value<<8 | octet, nil
}

func Format(value uint32) string {
	return netip.AddrFrom4([4]byte{
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}).String()
}

func invalid(s, reason string) error {
	return fmt.Errorf("%w: %q: %s", model.ErrInvalidAddress, s, reason)
}
