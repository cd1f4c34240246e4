// Package netguard holds the checks applied to URLs and identifiers that
// come from scraped pages or operator input: outbound URL safety (no
// private or loopback targets), bounded body reads and identifier syntax.
package netguard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrPrivateTarget is returned when a URL targets a private or loopback address.
var ErrPrivateTarget = errors.New("netguard: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("netguard: only http and https schemes are allowed")

// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrTooLarge = errors.New("netguard: body too large")

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

var (
	defaultLookup = net.LookupHost
	lookupHost    = defaultLookup
)

// ValidateURL checks that rawURL uses http/https, has a host, and does not
// point at a private or loopback address. Hostnames are resolved so an
// internal name cannot smuggle a private target; a failed lookup is let
// through and fails at connect time instead.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("netguard: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("netguard: URL has no host")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivate(addr) {
			return ErrPrivateTarget
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return ErrPrivateTarget
	}

	addrs, err := lookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && IsPrivate(addr) {
			return ErrPrivateTarget
		}
	}
	return nil
}

// IsPrivate reports whether addr is loopback, link-local, unspecified or in
// a private range.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most maxBytes from r. It returns ErrTooLarge,
// together with the bytes read so far, when r holds more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return data[:maxBytes], fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// ValidateIdentifier rejects identifiers unsuitable for URL path segments
// and log keys. Letters, digits, underscore, hyphen and dot are allowed.
func ValidateIdentifier(s string) error {
	if s == "" {
		return errors.New("netguard: identifier must not be empty")
	}
	if len(s) > 128 {
		return errors.New("netguard: identifier too long (max 128)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("netguard: invalid character %q in identifier", r)
		}
	}
	return nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
