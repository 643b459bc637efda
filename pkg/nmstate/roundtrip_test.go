package nmstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sampleState() *NetworkState {
	return &NetworkState{
		Version: CurrentSchemaVersion,
		Interfaces: []*Interface{
			{Base: BaseInterface{
				Name:  "eth0",
				Type:  TypeEthernet,
				State: StateUp,
				Mtu:   intPtr(1500),
				Ipv4: &IPConfig{
					Enabled:   boolPtr(true),
					Addresses: []Address{{IP: "192.0.2.2", PrefixLength: 24}},
				},
			}},
		},
		Routes: []Route{
			{Destination: "0.0.0.0/0", NextHopIface: "eth0", NextHopAddress: "192.0.2.1"},
		},
	}
}

func TestMergeIdentity(t *testing.T) {
	s := sampleState()
	empty := &NetworkState{Version: CurrentSchemaVersion}

	onto := MergeNetworkState(s.Clone(), empty)
	if diff := cmp.Diff(s, onto); diff != "" {
		t.Fatalf("merge(s, empty) changed the state (-want +got):\n%s", diff)
	}

	from := MergeNetworkState(empty.Clone(), s)
	if diff := cmp.Diff(s, from); diff != "" {
		t.Fatalf("merge(empty, s) differs from s (-want +got):\n%s", diff)
	}
}

func TestDiffRoundTrip(t *testing.T) {
	old := sampleState()
	updated := sampleState()
	updated.Interfaces[0].Base.Mtu = intPtr(9000)
	updated.Routes = append(updated.Routes, Route{Destination: "198.51.100.0/24", NextHopIface: "eth0"})

	d, err := GenDiff(updated, old)
	require.NoError(t, err)
	merged := MergeNetworkState(old, d)

	require.NoError(t, Verify(updated, merged), "merge(old, gen_diff(new, old)) must verify as new")
	require.NotNil(t, merged.Interfaces[0].Base.Mtu)
	require.Equal(t, 9000, *merged.Interfaces[0].Base.Mtu)
}

func TestSanitizeIdempotent(t *testing.T) {
	once := sampleState()
	require.NoError(t, once.Sanitize(false))
	twice := once.Clone()
	require.NoError(t, twice.Sanitize(false))
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second sanitize changed the state (-want +got):\n%s", diff)
	}
}

func TestVerifyReflexive(t *testing.T) {
	s := sampleState()
	require.NoError(t, s.Sanitize(false))
	require.NoError(t, Verify(s, s))
}
