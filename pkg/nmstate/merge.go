package nmstate

import "github.com/nispor/nipart/pkg/nperr"

// mergeInterface overlays desired onto current, field-wise, then applies
// the base-level post-merge corrections: a known old type is kept, so an
// unknown new type never overrides it (the one exception: a new Veth
// replaces an old Ethernet, since the kernel reports veth links as
// ethernet), an Unknown new state never overrides a known old one, and
// ipv4/ipv6 merge field-wise with the DHCP -> static transition applied
// afterwards.
func mergeInterface(current, desired *Interface) *Interface {
	if desired == nil {
		return current.clone()
	}
	if current == nil {
		return desired.clone()
	}

	merged := desired.clone()
	mergeBase(&merged.Base, &current.Base)

	if merged.Ethernet == nil {
		merged.Ethernet = current.Ethernet
	}
	if merged.Veth == nil {
		merged.Veth = current.Veth
	}
	if merged.Bond == nil {
		merged.Bond = current.Bond
	}
	if merged.LinuxBridge == nil {
		merged.LinuxBridge = current.LinuxBridge
	}
	if merged.OvsBridge == nil {
		merged.OvsBridge = current.OvsBridge
	}
	if merged.Vlan == nil {
		merged.Vlan = current.Vlan
	}
	if merged.Wifi == nil {
		merged.Wifi = current.Wifi
	}
	if merged.Wireguard == nil {
		merged.Wireguard = current.Wireguard
	}
	if merged.Raw == nil {
		merged.Raw = current.Raw
	} else {
		for k, v := range current.Raw {
			if _, ok := merged.Raw[k]; !ok {
				merged.Raw[k] = v
			}
		}
	}

	return merged
}

func mergeBase(self, old *BaseInterface) {
	if !(old.Type.IsUnknown() ||
		(old.Type == TypeEthernet && self.Type == TypeVeth)) {
		self.Type = old.Type
	}
	if self.State == StateUnknown || self.State == "" {
		self.State = old.State
	}

	switch {
	case self.Ipv4 == nil && old.Ipv4 != nil:
		self.Ipv4 = old.Ipv4.clone()
	case self.Ipv4 != nil && old.Ipv4 != nil:
		merged := mergeIPConfig(old.Ipv4, self.Ipv4)
		postMergeIPConfig(merged, old.Ipv4)
		self.Ipv4 = merged
	}

	switch {
	case self.Ipv6 == nil && old.Ipv6 != nil:
		self.Ipv6 = old.Ipv6.clone()
	case self.Ipv6 != nil && old.Ipv6 != nil:
		merged := mergeIPConfig(old.Ipv6, self.Ipv6)
		postMergeIPConfig(merged, old.Ipv6)
		self.Ipv6 = merged
	}
}

// ValidateDesired rejects a desired document that asks for the
// impossible given the observed current state:
// state up on an interface that does not exist, is not a creatable
// virtual type, and declares no veth peer nipart could create it from.
func ValidateDesired(desired, current *NetworkState) error {
	curIdx := current.Index()
	for _, d := range desired.Interfaces {
		if !d.Base.State.IsUp() {
			continue
		}
		if _, exists := curIdx[d.Key()]; exists {
			continue
		}
		if d.IsVirtual() || d.Veth != nil {
			continue
		}
		return nperr.InvalidArgument.Newf(
			"interface %s (%s) is set up but does not exist and cannot be created",
			d.Base.Name, d.Base.Type)
	}
	return nil
}

// MergeNetworkState produces the state nipart will apply from a desired
// document layered over the currently observed state, then runs the
// post-merge passes that depend on the whole
// document rather than a single interface.
func MergeNetworkState(current, desired *NetworkState) *NetworkState {
	merged := &NetworkState{Version: CurrentSchemaVersion}
	curIdx := current.Index()
	seen := make(map[IfaceKey]bool, len(desired.Interfaces))

	for _, d := range desired.Interfaces {
		c := curIdx[d.Key()]
		if c == nil && d.Base.Type.IsUnknown() {
			// An unknown type keys by (name, type); pair it with the
			// kernel-visible interface of the same name.
			c = curIdx[IfaceKey{Name: d.Base.Name}]
		}
		merged.Interfaces = append(merged.Interfaces, mergeInterface(c, d))
		seen[d.Key()] = true
		if c != nil {
			seen[c.Key()] = true
		}
	}
	for _, c := range current.Interfaces {
		if !seen[c.Key()] {
			merged.Interfaces = append(merged.Interfaces, c.clone())
		}
	}
	merged.Routes = mergeRoutes(current.Routes, desired.Routes)

	postMergeVeth(merged, seen)
	postMergeLoopback(merged)
	postMergeWifi(merged, seen)
	postMergeIgnoredPorts(merged, seen)

	return merged
}

// postMergeLoopback reinterprets "remove the loopback" as "reset it to
// defaults": lo cannot actually be deleted, so an absent
// loopback becomes a bare up interface whose default addresses sanitize
// restores.
func postMergeLoopback(ns *NetworkState) {
	for i, iface := range ns.Interfaces {
		if iface.Base.Type != TypeLoopback || !iface.Base.State.IsAbsent() {
			continue
		}
		ns.Interfaces[i] = &Interface{Base: BaseInterface{
			Name:  iface.Base.Name,
			Type:  TypeLoopback,
			State: StateUp,
		}}
	}
}

// postMergeVeth keeps veth pairs consistent: bringing up an end whose
// peer is nowhere in the document implicitly creates that peer, up too
// but at up-priority 1 so it activates after its primary; marking an end
// absent drags an undesired peer down with it. desiredKeys guards the
// second rule — a peer the user's document names explicitly keeps
// whatever state the user gave it.
func postMergeVeth(ns *NetworkState, desiredKeys map[IfaceKey]bool) {
	idx := ns.Index()
	var toAdd []*Interface
	for _, iface := range ns.Interfaces {
		if iface.Veth == nil || iface.Veth.Peer == "" {
			continue
		}
		if iface.Base.Type != TypeVeth && iface.Base.Type != TypeEthernet {
			continue
		}
		peerKey := IfaceKey{Name: iface.Veth.Peer}

		if iface.Base.State.IsAbsent() && desiredKeys[iface.Key()] {
			if peer, ok := idx[peerKey]; ok && !desiredKeys[peer.Key()] {
				peer.Base.State = StateAbsent
			}
			continue
		}

		if !iface.Base.State.IsUp() {
			continue
		}
		if _, ok := idx[peerKey]; ok {
			continue
		}
		peer := &Interface{Base: BaseInterface{
			Name:       iface.Veth.Peer,
			Type:       iface.Base.Type,
			State:      StateUp,
			UpPriority: 1,
		}, Veth: &VethConfig{Peer: iface.Base.Name}}
		toAdd = append(toAdd, peer)
		idx[peerKey] = peer
	}
	ns.Interfaces = append(ns.Interfaces, toAdd...)
}

// postMergeWifi implements "bind to any phy": if any WifiCfg interface in
// the merged document is up and doesn't name a base-iface, every
// wifi-phy interface the user didn't explicitly ask to go
// absent/down/ignore is marked up so nipart can associate it.
// desiredKeys distinguishes an interface the user's
// document actually mentioned from one merely carried over from current,
// since only an explicit desired state should block the promotion.
func postMergeWifi(ns *NetworkState, desiredKeys map[IfaceKey]bool) {
	bindAny := false
	for _, iface := range ns.Interfaces {
		if iface.Base.Type == TypeWifiCfg && iface.Base.State.IsUp() &&
			iface.Wifi != nil && iface.Wifi.BaseIface == "" {
			bindAny = true
			break
		}
	}
	if !bindAny {
		return
	}
	for _, iface := range ns.Interfaces {
		if iface.Base.Type != TypeWifiPhy {
			continue
		}
		if desiredKeys[iface.Key()] &&
			(iface.Base.State.IsAbsent() || iface.Base.State.IsDown() || iface.Base.State.IsIgnore()) {
			continue
		}
		iface.Base.State = StateUp
	}
}

// postMergeIgnoredPorts handles a desired controller's ports: a port
// currently in an Ignore state is auto-promoted to Up
// so the controller can enslave it — but only when the port itself is
// not independently desired, since an explicit user statement about the
// port always wins. Ports the document names that exist nowhere else are
// added as Ignore-state placeholders so downstream diff/verify never
// reports them as missing.
func postMergeIgnoredPorts(ns *NetworkState, desiredKeys map[IfaceKey]bool) {
	idx := ns.Index()
	var ports []string
	for _, iface := range ns.Interfaces {
		if !desiredKeys[iface.Key()] {
			continue
		}
		switch {
		case iface.LinuxBridge != nil:
			for _, p := range iface.LinuxBridge.Port {
				ports = append(ports, p.Name)
			}
		case iface.OvsBridge != nil:
			for _, p := range iface.OvsBridge.Port {
				ports = append(ports, p.Name)
			}
		case iface.Bond != nil:
			ports = append(ports, iface.Bond.Port...)
		}
	}
	for _, name := range ports {
		key := IfaceKey{Name: name}
		port, ok := idx[key]
		if !ok {
			placeholder := &Interface{Base: BaseInterface{
				Name:  name,
				State: StateIgnore,
			}}
			ns.Interfaces = append(ns.Interfaces, placeholder)
			idx[key] = placeholder
			continue
		}
		if port.Base.State.IsIgnore() && !desiredKeys[port.Key()] {
			port.Base.State = StateUp
		}
	}
}
