package nmstate

// BaseInterface carries the attributes common to every interface variant.
type BaseInterface struct {
	Name           string         `yaml:"name" json:"name"`
	Type           InterfaceType  `yaml:"type" json:"type"`
	State          InterfaceState `yaml:"state,omitempty" json:"state,omitempty"`
	UpPriority     uint32         `yaml:"up-priority,omitempty" json:"up-priority,omitempty"`
	Controller     string         `yaml:"controller,omitempty" json:"controller,omitempty"`
	ControllerType InterfaceType  `yaml:"controller-type,omitempty" json:"controller-type,omitempty"`
	MacAddress     string         `yaml:"mac-address,omitempty" json:"mac-address,omitempty"`
	PermanentMac   string         `yaml:"permanent-mac-address,omitempty" json:"permanent-mac-address,omitempty"`
	Mtu            *int           `yaml:"mtu,omitempty" json:"mtu,omitempty"`
	MinMtu         *int           `yaml:"min-mtu,omitempty" json:"min-mtu,omitempty"`
	MaxMtu         *int           `yaml:"max-mtu,omitempty" json:"max-mtu,omitempty"`

	Ipv4 *IPConfig `yaml:"ipv4,omitempty" json:"ipv4,omitempty"`
	Ipv6 *IPConfig `yaml:"ipv6,omitempty" json:"ipv6,omitempty"`
}

func (b *BaseInterface) clone() BaseInterface {
	out := *b
	if b.Mtu != nil {
		m := *b.Mtu
		out.Mtu = &m
	}
	if b.MinMtu != nil {
		m := *b.MinMtu
		out.MinMtu = &m
	}
	if b.MaxMtu != nil {
		m := *b.MaxMtu
		out.MaxMtu = &m
	}
	out.Ipv4 = b.Ipv4.clone()
	out.Ipv6 = b.Ipv6.clone()
	return out
}

// IsVirtual reports whether the type is one that nipart can create out of
// thin air, i.e. it need not pre-exist in the kernel for state Up to be
// valid.
func (t InterfaceType) IsVirtual() bool {
	switch t {
	case TypeVeth, TypeDummy, TypeVlan, TypeBond, TypeLinuxBridge,
		TypeOvsBridge, TypeOvsIface, TypeWireguard, TypeMacVlan, TypeMacVtap,
		TypeVxlan, TypeVrf, TypeTun, TypeIpsec, TypeXfrm, TypeIpVlan, TypeHsr,
		TypeMacSec, TypeWifiCfg:
		return true
	default:
		return false
	}
}
