package nmstate

import (
	"net"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/nispor/nipart/pkg/nperr"
)

// Sanitize normalizes and validates a NetworkState in place. isDesired
// selects the side-dependent canonicalization rule
// for addresses given with host bits set: the current side truncates to
// the network prefix, the desired side is preserved verbatim so a user's
// literal "192.0.2.1/24" still lands on that exact address.
func (ns *NetworkState) Sanitize(isDesired bool) error {
	var errs *multierror.Error
	for _, iface := range ns.Interfaces {
		if err := sanitizeInterface(iface, isDesired); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func sanitizeInterface(iface *Interface, isDesired bool) error {
	iface.Base.MacAddress = canonicalizeMac(iface.Base.MacAddress)
	iface.Base.PermanentMac = canonicalizeMac(iface.Base.PermanentMac)

	if err := sanitizeIPConfig(iface.Base.Ipv4, 32, isDesired); err != nil {
		return nperr.InvalidArgument.Newf("interface %s: %w", iface.Base.Name, err)
	}
	if err := sanitizeIPConfig(iface.Base.Ipv6, 128, isDesired); err != nil {
		return nperr.InvalidArgument.Newf("interface %s: %w", iface.Base.Name, err)
	}

	if iface.Base.Type == TypeLoopback {
		if err := sanitizeLoopback(iface); err != nil {
			return err
		}
	}
	return nil
}

func canonicalizeMac(mac string) string {
	if mac == "" {
		return mac
	}
	return strings.ToUpper(mac)
}

func sanitizeIPConfig(c *IPConfig, maxPrefix int, isDesired bool) error {
	if c == nil {
		return nil
	}
	for i := range c.Addresses {
		a := &c.Addresses[i]
		if a.PrefixLength < 0 || a.PrefixLength > maxPrefix {
			return nperr.InvalidArgument.Newf("prefix length %d out of range (max %d)", a.PrefixLength, maxPrefix)
		}
		if !isDesired {
			a.IP = networkAddress(a.IP, a.PrefixLength)
		}
	}
	return nil
}

// networkAddress truncates ip to its network prefix, e.g. 192.0.2.1/24 ->
// 192.0.2.0/24. Addresses that don't
// parse are left untouched; that's a different validation failure.
func networkAddress(ip string, prefixLen int) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	bits := 32
	if parsed.To4() == nil {
		bits = 128
	}
	if prefixLen < 0 || prefixLen > bits {
		return ip
	}
	mask := net.CIDRMask(prefixLen, bits)
	network := parsed.Mask(mask)
	return network.String()
}

func sanitizeLoopback(iface *Interface) error {
	defaultV4 := Address{IP: "127.0.0.1", PrefixLength: 8}
	defaultV6 := Address{IP: "::1", PrefixLength: 128}

	if iface.Base.Ipv4 == nil {
		iface.Base.Ipv4 = &IPConfig{Enabled: boolPtr(true)}
	}
	if !iface.Base.Ipv4.IsEnabled() && iface.Base.Ipv4.Enabled != nil {
		return nperr.InvalidArgument.New("disabling IPv4 on loopback interface is not allowed")
	}
	iface.Base.Ipv4.Enabled = boolPtr(true)
	if !containsAddress(iface.Base.Ipv4.Addresses, defaultV4) {
		iface.Base.Ipv4.Addresses = append(iface.Base.Ipv4.Addresses, defaultV4)
	}

	if iface.Base.Ipv6 == nil {
		iface.Base.Ipv6 = &IPConfig{Enabled: boolPtr(true)}
	}
	if !iface.Base.Ipv6.IsEnabled() && iface.Base.Ipv6.Enabled != nil {
		return nperr.InvalidArgument.New("disabling IPv6 on loopback interface is not allowed")
	}
	iface.Base.Ipv6.Enabled = boolPtr(true)
	if !containsAddress(iface.Base.Ipv6.Addresses, defaultV6) {
		iface.Base.Ipv6.Addresses = append(iface.Base.Ipv6.Addresses, defaultV6)
	}
	return nil
}

func containsAddress(addrs []Address, want Address) bool {
	for _, a := range addrs {
		if a.IP == want.IP && a.PrefixLength == want.PrefixLength {
			return true
		}
	}
	return false
}
