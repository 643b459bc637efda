package nmstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRevertRestoresPreApplyInterface(t *testing.T) {
	preApply := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp, Mtu: intPtr(1500)}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "eth0", Type: TypeEthernet, State: StateUp, Mtu: intPtr(9000)}},
	}}
	revert := GenerateRevert(desired, preApply)
	require.Len(t, revert.Interfaces, 1)
	require.NotNil(t, revert.Interfaces[0].Base.Mtu)
	assert.Equal(t, 1500, *revert.Interfaces[0].Base.Mtu)
}

func TestGenerateRevertMarksCreatedInterfaceAbsent(t *testing.T) {
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "veth0", Type: TypeVeth, State: StateUp}},
	}}
	revert := GenerateRevert(desired, &NetworkState{})
	require.Len(t, revert.Interfaces, 1)
	assert.Equal(t, StateAbsent, revert.Interfaces[0].Base.State)
}
