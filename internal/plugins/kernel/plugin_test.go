package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/nispor/nipart/pkg/nmstate"
)

func TestLinkKindToType(t *testing.T) {
	tests := []struct {
		name string
		l    link
		want nmstate.InterfaceType
	}{
		{"physical", link{kind: ""}, nmstate.TypeEthernet},
		{"veth reports as ethernet", link{kind: "veth"}, nmstate.TypeEthernet},
		{"loopback wins over kind", link{kind: "", flags: unix.IFF_LOOPBACK}, nmstate.TypeLoopback},
		{"bridge", link{kind: "bridge"}, nmstate.TypeLinuxBridge},
		{"bond", link{kind: "bond"}, nmstate.TypeBond},
		{"unknown kind passes through", link{kind: "gretap"}, nmstate.InterfaceType("gretap")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, linkKindToType(&tt.l))
		})
	}
}

func TestTypeToLinkKindRejectsNonCreatable(t *testing.T) {
	_, err := typeToLinkKind(nmstate.TypeLoopback)
	require.Error(t, err)

	kind, err := typeToLinkKind(nmstate.TypeDummy)
	require.NoError(t, err)
	assert.Equal(t, "dummy", kind)
}

func TestIfInfoMsgLayout(t *testing.T) {
	b := ifInfoMsg(unix.AF_UNSPEC, 7, unix.IFF_UP, unix.IFF_UP)
	require.Len(t, b, unix.SizeofIfInfomsg)
	assert.Equal(t, byte(unix.AF_UNSPEC), b[0])
}

func TestLinkToInterfaceStates(t *testing.T) {
	up := linkToInterface(&link{name: "eth0", flags: unix.IFF_UP, mtu: 1500})
	assert.Equal(t, nmstate.StateUp, up.Base.State)
	require.NotNil(t, up.Base.Mtu)
	assert.Equal(t, 1500, *up.Base.Mtu)

	down := linkToInterface(&link{name: "eth1"})
	assert.Equal(t, nmstate.StateDown, down.Base.State)
	assert.Nil(t, down.Base.Mtu)
}

func TestFillAddressesSplitsFamilies(t *testing.T) {
	l := &link{index: 3, name: "eth0"}
	iface := linkToInterface(l)
	fillAddresses(iface, l, []addr{
		{ifIndex: 3, family: unix.AF_INET, ip: []byte{192, 0, 2, 1}, prefixLen: 24, permanent: true},
		{ifIndex: 3, family: unix.AF_INET6, ip: make([]byte, 16), prefixLen: 64, valid: 120, preferred: 60},
		{ifIndex: 9, family: unix.AF_INET, ip: []byte{198, 51, 100, 1}, prefixLen: 24, permanent: true},
	})
	require.Len(t, iface.Base.Ipv4.Addresses, 1)
	assert.Equal(t, "192.0.2.1", iface.Base.Ipv4.Addresses[0].IP)
	assert.False(t, iface.Base.Ipv4.Addresses[0].IsAuto())
	require.Len(t, iface.Base.Ipv6.Addresses, 1)
	assert.True(t, iface.Base.Ipv6.Addresses[0].IsAuto())
	assert.Equal(t, "120", iface.Base.Ipv6.Addresses[0].ValidLifeTime)
}
