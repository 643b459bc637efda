package kernel

import (
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"

	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
)

// link is the decoded subset of one RTM_NEWLINK record this plugin
// cares about.
type link struct {
	index  int32
	name   string
	kind   string
	mac    string
	mtu    int
	minMtu int
	maxMtu int
	flags  uint32
}

// addr is the decoded subset of one RTM_NEWADDR record.
type addr struct {
	ifIndex   int32
	family    uint8
	ip        net.IP
	prefixLen int
	valid     uint32
	preferred uint32
	permanent bool
}

// rt is the decoded subset of one RTM_NEWROUTE record.
type rt struct {
	family   uint8
	dst      net.IP
	dstLen   int
	oifIndex int32
	gateway  net.IP
	metric   int
	table    int
	rtType   uint8
}

// conn wraps a NETLINK_ROUTE socket with the dump/change operations the
// plugin needs. The message-packing idiom (fixed-size header struct
// followed by a netlink attribute list) follows the generic-netlink
// client in this codebase's ancestry.
type conn struct {
	nl *netlink.Conn
}

func dialRoute() (*conn, error) {
	nl, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, nperr.PluginFailure.Newf("dialing rtnetlink: %w", err)
	}
	return &conn{nl: nl}, nil
}

func (c *conn) close() error {
	return c.nl.Close()
}

// ifInfoMsg packs a struct ifinfomsg in host byte order.
func ifInfoMsg(family uint8, index int32, flags, change uint32) []byte {
	b := make([]byte, unix.SizeofIfInfomsg)
	b[0] = family
	nlenc.PutUint32(b[4:8], uint32(index))
	nlenc.PutUint32(b[8:12], flags)
	nlenc.PutUint32(b[12:16], change)
	return b
}

// ifAddrMsg packs a struct ifaddrmsg in host byte order.
func ifAddrMsg(family, prefixLen uint8, index int32) []byte {
	b := make([]byte, unix.SizeofIfAddrmsg)
	b[0] = family
	b[1] = prefixLen
	nlenc.PutUint32(b[4:8], uint32(index))
	return b
}

func (c *conn) dump(typ netlink.HeaderType, data []byte) ([]netlink.Message, error) {
	msgs, err := c.nl.Execute(netlink.Message{
		Header: netlink.Header{Type: typ, Flags: netlink.Request | netlink.Dump},
		Data:   data,
	})
	if err != nil {
		return nil, nperr.PluginFailure.Newf("rtnetlink dump %d: %w", typ, err)
	}
	return msgs, nil
}

func (c *conn) change(typ netlink.HeaderType, flags netlink.HeaderFlags, data []byte) error {
	_, err := c.nl.Execute(netlink.Message{
		Header: netlink.Header{Type: typ, Flags: netlink.Request | netlink.Acknowledge | flags},
		Data:   data,
	})
	if err != nil {
		return nperr.PluginFailure.Newf("rtnetlink change %d: %w", typ, err)
	}
	return nil
}

func (c *conn) dumpLinks() (map[int32]*link, error) {
	msgs, err := c.dump(unix.RTM_GETLINK, ifInfoMsg(unix.AF_UNSPEC, 0, 0, 0))
	if err != nil {
		return nil, err
	}
	links := make(map[int32]*link, len(msgs))
	for _, m := range msgs {
		if len(m.Data) < unix.SizeofIfInfomsg {
			continue
		}
		l := &link{
			index: int32(nlenc.Uint32(m.Data[4:8])),
			flags: nlenc.Uint32(m.Data[8:12]),
		}
		ad, err := netlink.NewAttributeDecoder(m.Data[unix.SizeofIfInfomsg:])
		if err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		for ad.Next() {
			switch ad.Type() {
			case unix.IFLA_IFNAME:
				l.name = ad.String()
			case unix.IFLA_ADDRESS:
				l.mac = net.HardwareAddr(ad.Bytes()).String()
			case unix.IFLA_MTU:
				l.mtu = int(ad.Uint32())
			case unix.IFLA_MIN_MTU:
				l.minMtu = int(ad.Uint32())
			case unix.IFLA_MAX_MTU:
				l.maxMtu = int(ad.Uint32())
			case unix.IFLA_LINKINFO:
				ad.Nested(func(nad *netlink.AttributeDecoder) error {
					for nad.Next() {
						if nad.Type() == unix.IFLA_INFO_KIND {
							l.kind = nad.String()
						}
					}
					return nil
				})
			}
		}
		if err := ad.Err(); err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		links[l.index] = l
	}
	return links, nil
}

func (c *conn) dumpAddrs() ([]addr, error) {
	msgs, err := c.dump(unix.RTM_GETADDR, ifAddrMsg(unix.AF_UNSPEC, 0, 0))
	if err != nil {
		return nil, err
	}
	var addrs []addr
	for _, m := range msgs {
		if len(m.Data) < unix.SizeofIfAddrmsg {
			continue
		}
		a := addr{
			family:    m.Data[0],
			prefixLen: int(m.Data[1]),
			ifIndex:   int32(nlenc.Uint32(m.Data[4:8])),
		}
		ad, err := netlink.NewAttributeDecoder(m.Data[unix.SizeofIfAddrmsg:])
		if err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		flags := uint32(0)
		for ad.Next() {
			switch ad.Type() {
			case unix.IFA_ADDRESS:
				if a.ip == nil {
					a.ip = net.IP(ad.Bytes())
				}
			case unix.IFA_LOCAL:
				a.ip = net.IP(ad.Bytes())
			case unix.IFA_FLAGS:
				flags = ad.Uint32()
			case unix.IFA_CACHEINFO:
				// struct ifa_cacheinfo: prefered, valid, cstamp, tstamp.
				b := ad.Bytes()
				if len(b) >= 8 {
					a.preferred = nlenc.Uint32(b[0:4])
					a.valid = nlenc.Uint32(b[4:8])
				}
			}
		}
		if err := ad.Err(); err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		a.permanent = flags&unix.IFA_F_PERMANENT != 0 || a.valid == infiniteLifetime
		addrs = append(addrs, a)
	}
	return addrs, nil
}

const infiniteLifetime = 0xffffffff

func (c *conn) dumpRoutes() ([]rt, error) {
	data := make([]byte, unix.SizeofRtMsg)
	msgs, err := c.dump(unix.RTM_GETROUTE, data)
	if err != nil {
		return nil, err
	}
	var routes []rt
	for _, m := range msgs {
		if len(m.Data) < unix.SizeofRtMsg {
			continue
		}
		r := rt{
			family: m.Data[0],
			dstLen: int(m.Data[1]),
			table:  int(m.Data[4]),
			rtType: m.Data[6],
		}
		ad, err := netlink.NewAttributeDecoder(m.Data[unix.SizeofRtMsg:])
		if err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		for ad.Next() {
			switch ad.Type() {
			case unix.RTA_DST:
				r.dst = net.IP(ad.Bytes())
			case unix.RTA_GATEWAY:
				r.gateway = net.IP(ad.Bytes())
			case unix.RTA_OIF:
				r.oifIndex = int32(ad.Uint32())
			case unix.RTA_PRIORITY:
				r.metric = int(ad.Uint32())
			case unix.RTA_TABLE:
				r.table = int(ad.Uint32())
			}
		}
		if err := ad.Err(); err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// setLinkState flips IFF_UP on an existing link.
func (c *conn) setLinkState(index int32, up bool) error {
	flags := uint32(0)
	if up {
		flags = unix.IFF_UP
	}
	return c.change(unix.RTM_NEWLINK, 0, ifInfoMsg(unix.AF_UNSPEC, index, flags, unix.IFF_UP))
}

// setLinkMtu changes an existing link's MTU.
func (c *conn) setLinkMtu(index int32, mtu int) error {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.IFLA_MTU, uint32(mtu))
	attrs, err := ae.Encode()
	if err != nil {
		return nperr.Bug.New(err)
	}
	return c.change(unix.RTM_NEWLINK, 0, append(ifInfoMsg(unix.AF_UNSPEC, index, 0, 0), attrs...))
}

// createLink makes a new virtual link of the given rtnetlink kind; for
// veth, peer names the other end.
func (c *conn) createLink(name, kind, peer string) error {
	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)
	ae.Nested(unix.IFLA_LINKINFO, func(nae *netlink.AttributeEncoder) error {
		nae.String(unix.IFLA_INFO_KIND, kind)
		if kind == "veth" && peer != "" {
			nae.Nested(unix.IFLA_INFO_DATA, func(dae *netlink.AttributeEncoder) error {
				// VETH_INFO_PEER wraps a whole ifinfomsg plus the peer's
				// own attribute list.
				peerAe := netlink.NewAttributeEncoder()
				peerAe.String(unix.IFLA_IFNAME, peer)
				peerAttrs, err := peerAe.Encode()
				if err != nil {
					return err
				}
				dae.Bytes(vethInfoPeer, append(ifInfoMsg(unix.AF_UNSPEC, 0, 0, 0), peerAttrs...))
				return nil
			})
		}
		return nil
	})
	attrs, err := ae.Encode()
	if err != nil {
		return nperr.Bug.New(err)
	}
	data := append(ifInfoMsg(unix.AF_UNSPEC, 0, 0, 0), attrs...)
	return c.change(unix.RTM_NEWLINK, netlink.Create|netlink.Excl, data)
}

const vethInfoPeer = 1

// deleteLink removes a link by name.
func (c *conn) deleteLink(name string) error {
	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)
	attrs, err := ae.Encode()
	if err != nil {
		return nperr.Bug.New(err)
	}
	return c.change(unix.RTM_DELLINK, 0, append(ifInfoMsg(unix.AF_UNSPEC, 0, 0, 0), attrs...))
}

// addAddr attaches a static address to a link.
func (c *conn) addAddr(index int32, ip net.IP, prefixLen int) error {
	family := uint8(unix.AF_INET)
	raw := ip.To4()
	if raw == nil {
		family = unix.AF_INET6
		raw = ip.To16()
	}
	if raw == nil {
		return nperr.InvalidArgument.Newf("invalid ip %q", ip)
	}
	ae := netlink.NewAttributeEncoder()
	ae.Bytes(unix.IFA_LOCAL, raw)
	ae.Bytes(unix.IFA_ADDRESS, raw)
	attrs, err := ae.Encode()
	if err != nil {
		return nperr.Bug.New(err)
	}
	data := append(ifAddrMsg(family, uint8(prefixLen), index), attrs...)
	return c.change(unix.RTM_NEWADDR, netlink.Create|netlink.Replace, data)
}

// delAddr removes an address from a link.
func (c *conn) delAddr(index int32, ip net.IP, prefixLen int) error {
	family := uint8(unix.AF_INET)
	raw := ip.To4()
	if raw == nil {
		family = unix.AF_INET6
		raw = ip.To16()
	}
	if raw == nil {
		return nperr.InvalidArgument.Newf("invalid ip %q", ip)
	}
	ae := netlink.NewAttributeEncoder()
	ae.Bytes(unix.IFA_LOCAL, raw)
	ae.Bytes(unix.IFA_ADDRESS, raw)
	attrs, err := ae.Encode()
	if err != nil {
		return nperr.Bug.New(err)
	}
	return c.change(unix.RTM_DELADDR, 0, append(ifAddrMsg(family, uint8(prefixLen), index), attrs...))
}

// linkKindToType maps an rtnetlink IFLA_INFO_KIND onto the document's
// interface type. Veth links report as ethernet, carrying their peer in
// the veth config, matching how the document models them.
func linkKindToType(l *link) nmstate.InterfaceType {
	if l.flags&unix.IFF_LOOPBACK != 0 {
		return nmstate.TypeLoopback
	}
	switch l.kind {
	case "", "veth":
		return nmstate.TypeEthernet
	case "bridge":
		return nmstate.TypeLinuxBridge
	case "bond":
		return nmstate.TypeBond
	case "vlan":
		return nmstate.TypeVlan
	case "dummy":
		return nmstate.TypeDummy
	case "wireguard":
		return nmstate.TypeWireguard
	case "vxlan":
		return nmstate.TypeVxlan
	case "vrf":
		return nmstate.TypeVrf
	case "macvlan":
		return nmstate.TypeMacVlan
	case "macvtap":
		return nmstate.TypeMacVtap
	case "macsec":
		return nmstate.TypeMacSec
	case "tun":
		return nmstate.TypeTun
	case "ipvlan":
		return nmstate.TypeIpVlan
	case "hsr":
		return nmstate.TypeHsr
	case "xfrm":
		return nmstate.TypeXfrm
	default:
		return nmstate.InterfaceType(l.kind)
	}
}

// typeToLinkKind is the reverse mapping used when creating links.
func typeToLinkKind(t nmstate.InterfaceType) (string, error) {
	switch t {
	case nmstate.TypeDummy:
		return "dummy", nil
	case nmstate.TypeLinuxBridge:
		return "bridge", nil
	case nmstate.TypeBond:
		return "bond", nil
	case nmstate.TypeVlan:
		return "vlan", nil
	case nmstate.TypeVeth, nmstate.TypeEthernet:
		return "veth", nil
	case nmstate.TypeVrf:
		return "vrf", nil
	case nmstate.TypeVxlan:
		return "vxlan", nil
	case nmstate.TypeWireguard:
		return "wireguard", nil
	default:
		return "", nperr.NoSupport.New(fmt.Errorf("cannot create links of type %s", t))
	}
}
