package nmstate

// Address is a single static or auto-learned IP address attached to an
// interface.
type Address struct {
	IP               string `yaml:"ip" json:"ip"`
	PrefixLength     int    `yaml:"prefix-length" json:"prefix-length"`
	ValidLifeTime    string `yaml:"valid-life-time,omitempty" json:"valid-life-time,omitempty"`
	PreferredLifeTime string `yaml:"preferred-life-time,omitempty" json:"preferred-life-time,omitempty"`

	// Auto marks an address learned from DHCP/autoconf rather than
	// configured statically; it is never set directly by a user document,
	// only by a kernel-observed current state.
	Auto bool `yaml:"-" json:"-"`
}

// IsAuto reports whether this address carries DHCP/autoconf-assigned
// lifetimes, i.e. it originated from a dynamic source.
func (a Address) IsAuto() bool {
	return a.Auto || a.ValidLifeTime != "" || a.PreferredLifeTime != ""
}

func cloneAddresses(in []Address) []Address {
	if in == nil {
		return nil
	}
	out := make([]Address, len(in))
	copy(out, in)
	return out
}

// IPConfig is the shape of both the ipv4 and ipv6 sections: "enabled" plus a
// dynamic-vs-static address source.
type IPConfig struct {
	Enabled   *bool     `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Dhcp      *bool     `yaml:"dhcp,omitempty" json:"dhcp,omitempty"`
	Autoconf  *bool     `yaml:"autoconf,omitempty" json:"autoconf,omitempty"`
	Addresses []Address `yaml:"address,omitempty" json:"address,omitempty"`
}

func (c *IPConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// IsAuto reports whether this config is sourced dynamically (DHCP for
// IPv4, DHCP or autoconf for IPv6).
func (c *IPConfig) IsAuto() bool {
	if c == nil {
		return false
	}
	return (c.Dhcp != nil && *c.Dhcp) || (c.Autoconf != nil && *c.Autoconf)
}

func boolPtr(b bool) *bool { return &b }

func (c *IPConfig) clone() *IPConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Addresses = cloneAddresses(c.Addresses)
	return &out
}

// mergeIPConfig overrides fields set in other onto base, field-wise.
// A nil other leaves base untouched.
func mergeIPConfig(base, other *IPConfig) *IPConfig {
	if other == nil {
		return base.clone()
	}
	if base == nil {
		return other.clone()
	}
	out := base.clone()
	if other.Enabled != nil {
		out.Enabled = other.Enabled
	}
	if other.Dhcp != nil {
		out.Dhcp = other.Dhcp
	}
	if other.Autoconf != nil {
		out.Autoconf = other.Autoconf
	}
	if other.Addresses != nil {
		out.Addresses = cloneAddresses(other.Addresses)
	}
	return out
}

// postMergeIPConfig implements the DHCP/autoconf -> static transition rule
//: when old was auto-sourced with
// only auto addresses, and the merged config turned auto off while staying
// enabled, the surviving addresses lose their lifetimes and become static.
func postMergeIPConfig(merged, old *IPConfig) {
	if merged == nil || old == nil {
		return
	}
	if !old.IsAuto() || old.Addresses == nil {
		return
	}
	if !merged.IsEnabled() || merged.IsAuto() {
		return
	}
	allAuto := true
	for _, a := range old.Addresses {
		if !a.IsAuto() {
			allAuto = false
			break
		}
	}
	if !allAuto {
		return
	}
	for i := range merged.Addresses {
		merged.Addresses[i].ValidLifeTime = ""
		merged.Addresses[i].PreferredLifeTime = ""
		merged.Addresses[i].Auto = false
	}
}
