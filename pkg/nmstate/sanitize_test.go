package nmstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLoopbackAddsDefaults(t *testing.T) {
	ns := &NetworkState{Version: CurrentSchemaVersion, Interfaces: []*Interface{
		{Base: BaseInterface{Name: "lo", Type: TypeLoopback, State: StateUp}},
	}}
	require.NoError(t, ns.Sanitize(true))

	lo := ns.Interfaces[0]
	require.NotNil(t, lo.Base.Ipv4)
	assert.True(t, containsAddress(lo.Base.Ipv4.Addresses, Address{IP: "127.0.0.1", PrefixLength: 8}))
	require.NotNil(t, lo.Base.Ipv6)
	assert.True(t, containsAddress(lo.Base.Ipv6.Addresses, Address{IP: "::1", PrefixLength: 128}))
}

func TestSanitizeLoopbackRejectsDisabledIPv4(t *testing.T) {
	ns := &NetworkState{Version: CurrentSchemaVersion, Interfaces: []*Interface{
		{Base: BaseInterface{
			Name: "lo", Type: TypeLoopback, State: StateUp,
			Ipv4: &IPConfig{Enabled: boolPtr(false)},
		}},
	}}
	err := ns.Sanitize(true)
	require.Error(t, err)
}

func TestSanitizeMacAddressUppercased(t *testing.T) {
	ns := &NetworkState{Version: CurrentSchemaVersion, Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, MacAddress: "aa:bb:cc:dd:ee:ff"}},
	}}
	require.NoError(t, ns.Sanitize(true))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", ns.Interfaces[0].Base.MacAddress)
}

func TestSanitizeCurrentSideTruncatesToNetwork(t *testing.T) {
	c := &IPConfig{Addresses: []Address{{IP: "192.0.2.55", PrefixLength: 24}}}
	require.NoError(t, sanitizeIPConfig(c, 32, false))
	assert.Equal(t, "192.0.2.0", c.Addresses[0].IP)
}

func TestSanitizeDesiredSidePreservesHostBits(t *testing.T) {
	c := &IPConfig{Addresses: []Address{{IP: "192.0.2.55", PrefixLength: 24}}}
	require.NoError(t, sanitizeIPConfig(c, 32, true))
	assert.Equal(t, "192.0.2.55", c.Addresses[0].IP)
}

func TestSanitizeRejectsOutOfRangePrefix(t *testing.T) {
	c := &IPConfig{Addresses: []Address{{IP: "192.0.2.1", PrefixLength: 40}}}
	err := sanitizeIPConfig(c, 32, true)
	require.Error(t, err)
}
