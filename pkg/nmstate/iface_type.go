// Package nmstate implements the declarative state document, and the
// merge/diff/verify engine that reconciles it against observed state.
package nmstate

import "encoding/json"

// InterfaceType tags the concrete variant an Interface carries. It is a
// plain string type so unknown values round-trip as themselves without a
// distinct wrapper type.
type InterfaceType string

const (
	TypeEthernet    InterfaceType = "ethernet"
	TypeVeth        InterfaceType = "veth"
	TypeLoopback    InterfaceType = "loopback"
	TypeDummy       InterfaceType = "dummy"
	TypeVlan        InterfaceType = "vlan"
	TypeBond        InterfaceType = "bond"
	TypeLinuxBridge InterfaceType = "linux-bridge"
	TypeOvsBridge   InterfaceType = "ovs-bridge"
	TypeOvsIface    InterfaceType = "ovs-interface"
	TypeWifiPhy     InterfaceType = "wifi-phy"
	TypeWifiCfg     InterfaceType = "wifi-cfg"
	TypeWireguard   InterfaceType = "wireguard"
	TypeMacSec      InterfaceType = "macsec"
	TypeMacVlan     InterfaceType = "mac-vlan"
	TypeMacVtap     InterfaceType = "mac-vtap"
	TypeVxlan       InterfaceType = "vxlan"
	TypeVrf         InterfaceType = "vrf"
	TypeInfiniBand  InterfaceType = "infiniband"
	TypeTun         InterfaceType = "tun"
	TypeIpsec       InterfaceType = "ipsec"
	TypeXfrm        InterfaceType = "xfrm"
	TypeIpVlan      InterfaceType = "ipvlan"
	TypeHsr         InterfaceType = "hsr"
)

var knownTypes = map[InterfaceType]bool{
	TypeEthernet: true, TypeVeth: true, TypeLoopback: true, TypeDummy: true,
	TypeVlan: true, TypeBond: true, TypeLinuxBridge: true, TypeOvsBridge: true,
	TypeOvsIface: true, TypeWifiPhy: true, TypeWifiCfg: true, TypeWireguard: true,
	TypeMacSec: true, TypeMacVlan: true, TypeMacVtap: true, TypeVxlan: true,
	TypeVrf: true, TypeInfiniBand: true, TypeTun: true, TypeIpsec: true,
	TypeXfrm: true, TypeIpVlan: true, TypeHsr: true,
}

// IsUnknown reports whether t is not one of the types this module has
// dedicated handling for; it still deserializes (as Interface.Raw).
func (t InterfaceType) IsUnknown() bool {
	if t == "" {
		return true
	}
	return !knownTypes[t]
}

// IsUserspace reports whether identity for this type is (name, type)
// rather than a single kernel-visible name.
func (t InterfaceType) IsUserspace() bool {
	return t.IsUnknown() || t == TypeOvsBridge || t == TypeWifiCfg
}

// IsController reports whether interfaces of this type can own ports.
func (t InterfaceType) IsController() bool {
	switch t {
	case TypeOvsBridge, TypeBond, TypeHsr, TypeVrf, TypeLinuxBridge:
		return true
	default:
		return false
	}
}

// NeedController reports whether this type cannot exist without a
// controller, as OVS system interfaces require an ovs-bridge.
func (t InterfaceType) NeedController() bool {
	return t == TypeOvsIface
}

// MarshalJSON renders the type using its kebab-case wire name; unknown
// types render verbatim so that undocumented tags survive round-trips.
func (t InterfaceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}
