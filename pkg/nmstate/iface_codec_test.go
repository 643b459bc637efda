package nmstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterfaceRoundTripsUnknownKeys(t *testing.T) {
	doc := `
interfaces:
- name: vx0
  type: vxlan
  state: up
  vxlan:
    id: 42
    base-iface: eth0
`
	ns, err := Deserialize([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ns.Interfaces, 1)

	iface := ns.Interfaces[0]
	assert.Equal(t, InterfaceType("vxlan"), iface.Base.Type)
	require.Contains(t, iface.Raw, "vxlan")

	out, err := ns.Serialize()
	require.NoError(t, err)

	roundTripped, err := Deserialize(out)
	require.NoError(t, err)
	require.Len(t, roundTripped.Interfaces, 1)
	assert.Equal(t, iface.Raw["vxlan"], roundTripped.Interfaces[0].Raw["vxlan"])
}

func TestInterfaceDisambiguatesBridgeByType(t *testing.T) {
	doc := `
interfaces:
- name: br0
  type: linux-bridge
  state: up
  bridge:
    port:
    - name: eth0
- name: ovsbr0
  type: ovs-bridge
  state: up
  bridge:
    port:
    - name: eth1
`
	ns, err := Deserialize([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ns.Interfaces, 2)

	require.NotNil(t, ns.Interfaces[0].LinuxBridge)
	require.Nil(t, ns.Interfaces[0].OvsBridge)
	assert.Equal(t, "eth0", ns.Interfaces[0].LinuxBridge.Port[0].Name)

	require.NotNil(t, ns.Interfaces[1].OvsBridge)
	require.Nil(t, ns.Interfaces[1].LinuxBridge)
	assert.Equal(t, "eth1", ns.Interfaces[1].OvsBridge.Port[0].Name)
}
