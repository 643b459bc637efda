package nmstate

import (
	"testing"

	"github.com/nispor/nipart/pkg/nperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeserializeDefaultsVersion(t *testing.T) {
	ns, err := Deserialize([]byte("interfaces: []\n"))
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, ns.Version)
}

func TestDeserializeRejectsUnknownVersion(t *testing.T) {
	_, err := Deserialize([]byte("version: 99\ninterfaces: []\n"))
	require.Error(t, err)
	assert.Equal(t, nperr.InvalidSchemaVersion, nperr.GetKind(err))
}

func TestDeserializeNormalizesNBSP(t *testing.T) {
	doc := "interfaces:\n- name: eth0\n  type: ethernet\n  state: up\n"
	ns, err := Deserialize([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ns.Interfaces, 1)
	assert.Equal(t, "eth0", ns.Interfaces[0].Base.Name)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := Deserialize([]byte("not: [valid"))
	require.Error(t, err)
	assert.Equal(t, nperr.InvalidArgument, nperr.GetKind(err))
}

func TestInterfaceKeyIdentity(t *testing.T) {
	eth := &Interface{Base: BaseInterface{Name: "eth0", Type: TypeEthernet}}
	assert.Equal(t, IfaceKey{Name: "eth0"}, eth.Key())

	ovs := &Interface{Base: BaseInterface{Name: "br0", Type: TypeOvsBridge}}
	assert.Equal(t, IfaceKey{Name: "br0", Type: TypeOvsBridge}, ovs.Key())
}

func TestNetworkStateUpsertAndGet(t *testing.T) {
	ns := &NetworkState{Version: CurrentSchemaVersion}
	eth := &Interface{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp}}
	ns.Upsert(eth)
	require.Len(t, ns.Interfaces, 1)

	updated := &Interface{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateDown}}
	ns.Upsert(updated)
	require.Len(t, ns.Interfaces, 1)
	assert.Equal(t, StateDown, ns.Get(eth.Key()).Base.State)
}

func TestNetworkStateCloneIsDeep(t *testing.T) {
	ns := &NetworkState{Version: CurrentSchemaVersion, Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, Ipv4: &IPConfig{Enabled: boolPtr(true)}}},
	}}
	clone := ns.Clone()
	clone.Interfaces[0].Base.Ipv4.Enabled = boolPtr(false)
	assert.True(t, *ns.Interfaces[0].Base.Ipv4.Enabled)
	assert.False(t, *clone.Interfaces[0].Base.Ipv4.Enabled)
}
