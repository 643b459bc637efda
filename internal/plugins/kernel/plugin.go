// Package kernel is the reference Kernel-role plugin: it observes links,
// addresses and routes over rtnetlink and programs the subset of desired
// state the kernel owns (link existence, up/down, MTU, static
// addresses).
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/sys/unix"

	"github.com/nispor/nipart/internal/pluginworker"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
)

// Version is stamped at build time.
var Version = "dev"

// Plugin implements pluginworker.Handler over rtnetlink.
type Plugin struct {
	pluginworker.NoSupportHandler
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Info() pluginworker.PluginInfo {
	return pluginworker.PluginInfo{
		Name:    "kernel",
		Version: Version,
		IfaceTypes: []string{
			string(nmstate.TypeEthernet), string(nmstate.TypeVeth),
			string(nmstate.TypeLoopback), string(nmstate.TypeDummy),
			string(nmstate.TypeVlan), string(nmstate.TypeBond),
			string(nmstate.TypeLinuxBridge), string(nmstate.TypeVrf),
			string(nmstate.TypeVxlan), string(nmstate.TypeWireguard),
			string(nmstate.TypeWifiPhy),
		},
		Roles: []string{"kernel", "query-and-apply"},
	}
}

// QueryNetworkState reports every kernel-visible link with its
// addresses, plus the main-table routes.
func (p *Plugin) QueryNetworkState(ctx context.Context, _ json.RawMessage) (*nmstate.NetworkState, error) {
	c, err := dialRoute()
	if err != nil {
		return nil, err
	}
	defer c.close()
	return queryState(c)
}

func queryState(c *conn) (*nmstate.NetworkState, error) {
	links, err := c.dumpLinks()
	if err != nil {
		return nil, err
	}
	addrs, err := c.dumpAddrs()
	if err != nil {
		return nil, err
	}
	routes, err := c.dumpRoutes()
	if err != nil {
		return nil, err
	}
	wireless, err := wirelessIfIndexes()
	if err != nil {
		return nil, err
	}

	ns := &nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}
	for _, l := range links {
		iface := linkToInterface(l)
		if wireless[l.index] {
			iface.Base.Type = nmstate.TypeWifiPhy
		}
		fillAddresses(iface, l, addrs)
		ns.Interfaces = append(ns.Interfaces, iface)
	}
	for _, r := range routes {
		if nr, ok := routeToState(r, links); ok {
			ns.Routes = append(ns.Routes, nr)
		}
	}
	return ns, nil
}

func linkToInterface(l *link) *nmstate.Interface {
	state := nmstate.StateDown
	if l.flags&unix.IFF_UP != 0 {
		state = nmstate.StateUp
	}
	iface := &nmstate.Interface{
		Base: nmstate.BaseInterface{
			Name:       l.name,
			Type:       linkKindToType(l),
			State:      state,
			MacAddress: l.mac,
		},
	}
	if l.mtu > 0 {
		mtu := l.mtu
		iface.Base.Mtu = &mtu
	}
	if l.minMtu > 0 {
		m := l.minMtu
		iface.Base.MinMtu = &m
	}
	if l.maxMtu > 0 {
		m := l.maxMtu
		iface.Base.MaxMtu = &m
	}
	return iface
}

func fillAddresses(iface *nmstate.Interface, l *link, addrs []addr) {
	var v4, v6 []nmstate.Address
	for _, a := range addrs {
		if a.ifIndex != l.index || a.ip == nil {
			continue
		}
		entry := nmstate.Address{
			IP:           a.ip.String(),
			PrefixLength: a.prefixLen,
		}
		if !a.permanent {
			entry.Auto = true
			entry.ValidLifeTime = lifetime(a.valid)
			entry.PreferredLifeTime = lifetime(a.preferred)
		}
		switch a.family {
		case unix.AF_INET:
			v4 = append(v4, entry)
		case unix.AF_INET6:
			v6 = append(v6, entry)
		}
	}
	enabled4, enabled6 := len(v4) > 0, len(v6) > 0
	iface.Base.Ipv4 = &nmstate.IPConfig{Enabled: &enabled4, Addresses: v4}
	iface.Base.Ipv6 = &nmstate.IPConfig{Enabled: &enabled6, Addresses: v6}
}

func lifetime(seconds uint32) string {
	if seconds == infiniteLifetime {
		return ""
	}
	return strconv.FormatUint(uint64(seconds), 10)
}

func routeToState(r rt, links map[int32]*link) (nmstate.Route, bool) {
	if r.rtType != unix.RTN_UNICAST || r.table != unix.RT_TABLE_MAIN {
		return nmstate.Route{}, false
	}
	nr := nmstate.Route{
		Metric:  r.metric,
		TableID: r.table,
	}
	if r.dst != nil {
		nr.Destination = fmt.Sprintf("%s/%d", r.dst, r.dstLen)
	} else if r.family == unix.AF_INET {
		nr.Destination = "0.0.0.0/0"
	} else {
		nr.Destination = "::/0"
	}
	if r.gateway != nil {
		nr.NextHopAddress = r.gateway.String()
	}
	if l, ok := links[r.oifIndex]; ok {
		nr.NextHopIface = l.name
	}
	return nr, true
}

// ApplyNetworkState walks the apply-ordered interface list and programs
// link existence, admin state, MTU and static addresses. Interfaces of
// types this plugin does not own pass through untouched; the other
// QueryAndApply plugins receive the same document and handle them.
func (p *Plugin) ApplyNetworkState(ctx context.Context, desired *nmstate.NetworkState) (*nmstate.NetworkState, error) {
	c, err := dialRoute()
	if err != nil {
		return nil, err
	}
	defer c.close()

	links, err := c.dumpLinks()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*link, len(links))
	for _, l := range links {
		byName[l.name] = l
	}
	owned := make(map[nmstate.InterfaceType]bool)
	for _, t := range p.Info().IfaceTypes {
		owned[nmstate.InterfaceType(t)] = true
	}

	for _, iface := range desired.Interfaces {
		if !owned[iface.Base.Type] {
			continue
		}
		if err := p.applyInterface(ctx, c, iface, byName); err != nil {
			return nil, err
		}
	}
	return queryState(c)
}

func (p *Plugin) applyInterface(ctx context.Context, c *conn, iface *nmstate.Interface, byName map[string]*link) error {
	name := iface.Base.Name
	existing := byName[name]

	switch {
	case iface.Base.State.IsAbsent():
		if existing == nil {
			return nil
		}
		if !iface.IsVirtual() {
			// A physical NIC cannot be removed; admin-down is the
			// closest the kernel offers.
			dlog.Infof(ctx, "downing physical interface %s marked absent", name)
			return c.setLinkState(existing.index, false)
		}
		dlog.Infof(ctx, "deleting %s", name)
		delete(byName, name)
		return c.deleteLink(name)
	case iface.Base.State.IsIgnore():
		return nil
	}

	if existing == nil {
		kind, err := typeToLinkKind(iface.Base.Type)
		if err != nil {
			return err
		}
		peer := ""
		if iface.Veth != nil {
			peer = iface.Veth.Peer
		}
		dlog.Infof(ctx, "creating %s link %s", kind, name)
		if err := c.createLink(name, kind, peer); err != nil {
			return err
		}
		// Re-dump to learn the new index (and the peer's, for veth).
		links, err := c.dumpLinks()
		if err != nil {
			return err
		}
		for _, l := range links {
			byName[l.name] = l
		}
		existing = byName[name]
		if existing == nil {
			return nperr.PluginFailure.Newf("created link %s did not appear", name)
		}
	}

	if iface.Base.Mtu != nil && *iface.Base.Mtu != existing.mtu {
		if err := c.setLinkMtu(existing.index, *iface.Base.Mtu); err != nil {
			return err
		}
	}
	if err := p.applyAddresses(ctx, c, iface, existing); err != nil {
		return err
	}
	if iface.Base.State.IsUp() && existing.flags&unix.IFF_UP == 0 {
		return c.setLinkState(existing.index, true)
	}
	if iface.Base.State.IsDown() && existing.flags&unix.IFF_UP != 0 {
		return c.setLinkState(existing.index, false)
	}
	return nil
}

// applyAddresses reconciles the static address set of one link: desired
// static addresses are added, present-but-undesired static addresses
// removed. Auto addresses belong to the DHCP plugin and are left alone.
func (p *Plugin) applyAddresses(ctx context.Context, c *conn, iface *nmstate.Interface, l *link) error {
	current, err := c.dumpAddrs()
	if err != nil {
		return err
	}
	type key struct {
		ip     string
		prefix int
	}
	have := make(map[key]addr)
	for _, a := range current {
		if a.ifIndex == l.index && a.ip != nil && a.permanent {
			have[key{a.ip.String(), a.prefixLen}] = a
		}
	}
	want := make(map[key]bool)
	for _, cfg := range []*nmstate.IPConfig{iface.Base.Ipv4, iface.Base.Ipv6} {
		if cfg == nil || !cfg.IsEnabled() {
			continue
		}
		for _, a := range cfg.Addresses {
			if a.IsAuto() {
				continue
			}
			k := key{a.IP, a.PrefixLength}
			want[k] = true
			if _, ok := have[k]; ok {
				continue
			}
			ip := net.ParseIP(a.IP)
			if ip == nil {
				return nperr.InvalidArgument.Newf("interface %s: invalid address %q", iface.Base.Name, a.IP)
			}
			dlog.Debugf(ctx, "adding %s/%d to %s", a.IP, a.PrefixLength, iface.Base.Name)
			if err := c.addAddr(l.index, ip, a.PrefixLength); err != nil {
				return err
			}
		}
	}
	// Addresses are only pruned when the document states them
	// explicitly; an interface with no ip section keeps what it has.
	explicit := (iface.Base.Ipv4 != nil && iface.Base.Ipv4.Addresses != nil) ||
		(iface.Base.Ipv6 != nil && iface.Base.Ipv6.Addresses != nil)
	if !explicit {
		return nil
	}
	for k, a := range have {
		if want[k] {
			continue
		}
		dlog.Debugf(ctx, "removing %s/%d from %s", k.ip, k.prefix, iface.Base.Name)
		if err := c.delAddr(l.index, a.ip, a.prefixLen); err != nil {
			return err
		}
	}
	return nil
}
