package nmstate

// EthernetConfig carries the optional tunables of a physical/veth link.
// VethConfig names the other half of a veth pair.
type EthernetConfig struct {
	Duplex  string `yaml:"duplex,omitempty" json:"duplex,omitempty"`
	SpeedMb int    `yaml:"speed,omitempty" json:"speed,omitempty"`
}

type VethConfig struct {
	Peer string `yaml:"peer" json:"peer"`
}

type BondConfig struct {
	Mode    string            `yaml:"mode,omitempty" json:"mode,omitempty"`
	Port    []string          `yaml:"port,omitempty" json:"port,omitempty"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

type LinuxBridgeConfig struct {
	Port []LinuxBridgePortConfig `yaml:"port,omitempty" json:"port,omitempty"`
}

type LinuxBridgePortConfig struct {
	Name string `yaml:"name" json:"name"`
}

type OvsBridgeConfig struct {
	Port []OvsBridgePortConfig `yaml:"port,omitempty" json:"port,omitempty"`
}

type OvsBridgePortConfig struct {
	Name string `yaml:"name" json:"name"`
}

type VlanConfig struct {
	ID       uint32 `yaml:"id" json:"id"`
	BaseIface string `yaml:"base-iface" json:"base-iface"`
}

// WifiConfig models a WifiCfg pseudo-interface: credentials to associate
// with an SSID, optionally bound to a concrete wifi-phy. Psk is a
// secret masked by HideSecrets.
type WifiConfig struct {
	Ssid     string `yaml:"ssid" json:"ssid"`
	BaseIface string `yaml:"base-iface,omitempty" json:"base-iface,omitempty"`
	AuthType string `yaml:"auth-type,omitempty" json:"auth-type,omitempty"`
	Psk      string `yaml:"psk,omitempty" json:"psk,omitempty"`
}

type WireguardPeer struct {
	PublicKey  string `yaml:"public-key" json:"public-key"`
	Endpoint   string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AllowedIPs []string `yaml:"allowed-ips,omitempty" json:"allowed-ips,omitempty"`
}

// WireguardConfig carries the tunnel's own private key, a secret hidden by
// HideSecrets.
type WireguardConfig struct {
	PrivateKey string          `yaml:"private-key,omitempty" json:"private-key,omitempty"`
	ListenPort int             `yaml:"listen-port,omitempty" json:"listen-port,omitempty"`
	Peers      []WireguardPeer `yaml:"peers,omitempty" json:"peers,omitempty"`
}

// Interface is the document's tagged-variant entity. Go has no sum types,
// so the discriminant lives in Base.Type and exactly one of the
// type-specific pointers below should be non-nil; interface types this
// module has no dedicated struct for (MacSec, MacVlan, MacVtap, VxLAN,
// Vrf, InfiniBand, Tun, Ipsec, Xfrm, IpVlan, Hsr, and any caller-supplied
// tag nmstate has never heard of) keep their attributes in Raw, satisfying
// the Unknown(tag) passthrough invariant whether or not the
// tag is itself "unknown".
type Interface struct {
	Base BaseInterface `yaml:",inline" json:",inline"`

	Ethernet  *EthernetConfig  `yaml:"ethernet,omitempty" json:"ethernet,omitempty"`
	Veth      *VethConfig      `yaml:"veth,omitempty" json:"veth,omitempty"`
	Bond      *BondConfig      `yaml:"link-aggregation,omitempty" json:"link-aggregation,omitempty"`
	LinuxBridge *LinuxBridgeConfig `yaml:"bridge,omitempty" json:"bridge,omitempty"`
	OvsBridge *OvsBridgeConfig `yaml:"bridge,omitempty" json:"-"`
	Vlan      *VlanConfig      `yaml:"vlan,omitempty" json:"vlan,omitempty"`
	Wifi      *WifiConfig      `yaml:"wifi,omitempty" json:"wifi,omitempty"`
	Wireguard *WireguardConfig `yaml:"wireguard,omitempty" json:"wireguard,omitempty"`

	// Raw preserves any attribute nipart has no typed field for, keyed by
	// its wire name, so serialize -> merge -> serialize round-trips
	// untouched.
	Raw map[string]interface{} `yaml:",inline" json:"-"`
}

// Key returns the identity nipart uses for this interface: (name, type)
// for userspace-only entities, name alone for kernel-visible ones.
func (i *Interface) Key() IfaceKey {
	if i.Base.Type.IsUserspace() {
		return IfaceKey{Name: i.Base.Name, Type: i.Base.Type}
	}
	return IfaceKey{Name: i.Base.Name}
}

// IfaceKey is the lookup key for an Interface within a NetworkState.
type IfaceKey struct {
	Name string
	Type InterfaceType // empty for kernel-visible lookups
}

func (i *Interface) clone() *Interface {
	if i == nil {
		return nil
	}
	out := *i
	out.Base = i.Base.clone()
	if i.Ethernet != nil {
		c := *i.Ethernet
		out.Ethernet = &c
	}
	if i.Veth != nil {
		c := *i.Veth
		out.Veth = &c
	}
	if i.Bond != nil {
		c := *i.Bond
		c.Port = append([]string(nil), i.Bond.Port...)
		if i.Bond.Options != nil {
			c.Options = make(map[string]string, len(i.Bond.Options))
			for k, v := range i.Bond.Options {
				c.Options[k] = v
			}
		}
		out.Bond = &c
	}
	if i.LinuxBridge != nil {
		c := *i.LinuxBridge
		c.Port = append([]LinuxBridgePortConfig(nil), i.LinuxBridge.Port...)
		out.LinuxBridge = &c
	}
	if i.OvsBridge != nil {
		c := *i.OvsBridge
		c.Port = append([]OvsBridgePortConfig(nil), i.OvsBridge.Port...)
		out.OvsBridge = &c
	}
	if i.Vlan != nil {
		c := *i.Vlan
		out.Vlan = &c
	}
	if i.Wifi != nil {
		c := *i.Wifi
		out.Wifi = &c
	}
	if i.Wireguard != nil {
		c := *i.Wireguard
		c.Peers = append([]WireguardPeer(nil), i.Wireguard.Peers...)
		out.Wireguard = &c
	}
	if i.Raw != nil {
		out.Raw = make(map[string]interface{}, len(i.Raw))
		for k, v := range i.Raw {
			out.Raw[k] = v
		}
	}
	return &out
}

// IsVirtual reports whether this concrete interface is one nipart can
// create.
func (i *Interface) IsVirtual() bool {
	return i.Base.Type.IsVirtual()
}
