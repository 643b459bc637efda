package nmstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsUnmentionedCurrentInterfaces(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth1", Type: TypeEthernet, State: StateUp}},
	}}
	merged := MergeNetworkState(current, desired)
	require.Len(t, merged.Interfaces, 2)
}

func TestMergeUnknownTypeNeverOverridesKnown(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", State: StateDown}},
	}}
	merged := MergeNetworkState(current, desired)
	iface := merged.Get(IfaceKey{Name: "eth0"})
	require.NotNil(t, iface)
	assert.Equal(t, TypeEthernet, iface.Base.Type)
}

func TestMergeEthernetCanPromoteToVeth(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeVeth, State: StateUp}, Veth: &VethConfig{Peer: "eth0-peer"}},
	}}
	merged := MergeNetworkState(current, desired)
	iface := merged.Get(IfaceKey{Name: "eth0"})
	require.NotNil(t, iface)
	assert.Equal(t, TypeVeth, iface.Base.Type)
}

func TestMergeDhcpToStaticClearsLifetimes(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp, Ipv4: &IPConfig{
			Enabled: boolPtr(true), Dhcp: boolPtr(true),
			Addresses: []Address{{IP: "192.0.2.5", PrefixLength: 24, ValidLifeTime: "3600", PreferredLifeTime: "1800"}},
		}}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp, Ipv4: &IPConfig{
			Enabled: boolPtr(true), Dhcp: boolPtr(false),
			Addresses: []Address{{IP: "192.0.2.5", PrefixLength: 24}},
		}}},
	}}
	merged := MergeNetworkState(current, desired)
	iface := merged.Get(IfaceKey{Name: "eth0"})
	require.NotNil(t, iface)
	assert.Empty(t, iface.Base.Ipv4.Addresses[0].ValidLifeTime)
	assert.Empty(t, iface.Base.Ipv4.Addresses[0].PreferredLifeTime)
}

func TestMergeVethCreatesImplicitPeer(t *testing.T) {
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeVeth, State: StateUp}, Veth: &VethConfig{Peer: "veth1"}},
	}}
	merged := MergeNetworkState(&NetworkState{}, desired)
	peer := merged.Get(IfaceKey{Name: "veth1"})
	require.NotNil(t, peer)
	assert.Equal(t, TypeVeth, peer.Base.Type)
	assert.Equal(t, "veth0", peer.Veth.Peer)
}

func TestMergeEthernetVethCreatesPeerWithLowerPriority(t *testing.T) {
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeEthernet, State: StateUp}, Veth: &VethConfig{Peer: "veth1"}},
	}}
	merged := MergeNetworkState(&NetworkState{}, desired)
	peer := merged.Get(IfaceKey{Name: "veth1"})
	require.NotNil(t, peer)
	assert.Equal(t, TypeEthernet, peer.Base.Type)
	assert.Equal(t, StateUp, peer.Base.State)
	assert.Equal(t, uint32(1), peer.Base.UpPriority)
	assert.Equal(t, "veth0", peer.Veth.Peer)
}

func TestMergeAbsentVethPropagatesToUndesiredPeer(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeVeth, State: StateUp}, Veth: &VethConfig{Peer: "veth1"}},
		{Base: BaseInterface{Name: "veth1", Type: TypeVeth, State: StateUp}, Veth: &VethConfig{Peer: "veth0"}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeVeth, State: StateAbsent}},
	}}
	merged := MergeNetworkState(current, desired)
	peer := merged.Get(IfaceKey{Name: "veth1"})
	require.NotNil(t, peer)
	assert.Equal(t, StateAbsent, peer.Base.State)
}

func TestMergeAbsentVethLeavesExplicitlyDesiredPeerAlone(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeVeth, State: StateUp}, Veth: &VethConfig{Peer: "veth1"}},
		{Base: BaseInterface{Name: "veth1", Type: TypeVeth, State: StateUp}, Veth: &VethConfig{Peer: "veth0"}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeVeth, State: StateAbsent}},
		{Base: BaseInterface{Name: "veth1", Type: TypeVeth, State: StateUp}},
	}}
	merged := MergeNetworkState(current, desired)
	peer := merged.Get(IfaceKey{Name: "veth1"})
	require.NotNil(t, peer)
	assert.Equal(t, StateUp, peer.Base.State)
}

func TestMergeWifiBindToAnyPhyBringsUpExistingPhys(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "wlan0", Type: TypeWifiPhy, State: StateDownIgnore}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "home-wifi", Type: TypeWifiCfg, State: StateUp}, Wifi: &WifiConfig{Ssid: "home"}},
	}}
	merged := MergeNetworkState(current, desired)
	phy := merged.Get(IfaceKey{Name: "wlan0"})
	require.NotNil(t, phy)
	assert.Equal(t, StateUp, phy.Base.State)
}

func TestMergeAbsentLoopbackResetsToDefault(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "lo", Type: TypeLoopback, State: StateUp, Mtu: intPtr(65536), Ipv4: &IPConfig{
			Enabled:   boolPtr(true),
			Addresses: []Address{{IP: "127.0.0.1", PrefixLength: 8}, {IP: "127.0.0.2", PrefixLength: 32}},
		}}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "lo", Type: TypeLoopback, State: StateAbsent}},
	}}
	merged := MergeNetworkState(current, desired)
	lo := merged.Get(IfaceKey{Name: "lo"})
	require.NotNil(t, lo)
	assert.Equal(t, StateUp, lo.Base.State)
	assert.Nil(t, lo.Base.Mtu)

	require.NoError(t, merged.Sanitize(false))
	require.Len(t, lo.Base.Ipv4.Addresses, 1)
	assert.Equal(t, "127.0.0.1", lo.Base.Ipv4.Addresses[0].IP)
}

func TestMergePromotesIgnoredPortToUpForDesiredController(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateIgnore}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "br0", Type: TypeLinuxBridge, State: StateUp},
			LinuxBridge: &LinuxBridgeConfig{Port: []LinuxBridgePortConfig{{Name: "eth0"}}}},
	}}
	merged := MergeNetworkState(current, desired)
	port := merged.Get(IfaceKey{Name: "eth0"})
	require.NotNil(t, port)
	assert.Equal(t, StateUp, port.Base.State)
}

func TestMergeIgnoredPortStaysIgnoredWhenIndependentlyDesired(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateIgnore}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateIgnore}},
		{Base: BaseInterface{Name: "br0", Type: TypeLinuxBridge, State: StateUp},
			LinuxBridge: &LinuxBridgeConfig{Port: []LinuxBridgePortConfig{{Name: "eth0"}}}},
	}}
	merged := MergeNetworkState(current, desired)
	port := merged.Get(IfaceKey{Name: "eth0"})
	require.NotNil(t, port)
	assert.Equal(t, StateIgnore, port.Base.State)
}

func TestMergePromotesBridgePortsToIgnored(t *testing.T) {
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "br0", Type: TypeLinuxBridge, State: StateUp},
			LinuxBridge: &LinuxBridgeConfig{Port: []LinuxBridgePortConfig{{Name: "eth0"}}}},
	}}
	merged := MergeNetworkState(&NetworkState{}, desired)
	port := merged.Get(IfaceKey{Name: "eth0"})
	require.NotNil(t, port)
	assert.Equal(t, StateIgnore, port.Base.State)
}
