// Package ovs is the reference plugin owning ovs-bridge and
// ovs-interface types: it reads bridge/port topology from ovsdb-server
// over its JSON-RPC socket and programs changes through ovs-vsctl.
package ovs

import (
	"context"
	"encoding/json"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/digitalocean/go-openvswitch/ovsdb"

	"github.com/nispor/nipart/internal/pluginworker"
	"github.com/nispor/nipart/pkg/nmstate"
	"github.com/nispor/nipart/pkg/nperr"
)

// Version is stamped at build time.
var Version = "dev"

// DefaultDatabaseSocket is ovsdb-server's conventional unix socket.
const DefaultDatabaseSocket = "/var/run/openvswitch/db.sock"

const database = "Open_vSwitch"

// Plugin implements pluginworker.Handler for the OVS-owned interface
// types.
type Plugin struct {
	pluginworker.NoSupportHandler

	// DatabaseSocket overrides DefaultDatabaseSocket, mostly for tests.
	DatabaseSocket string
}

func New() *Plugin {
	return &Plugin{DatabaseSocket: DefaultDatabaseSocket}
}

func (p *Plugin) Info() pluginworker.PluginInfo {
	return pluginworker.PluginInfo{
		Name:       "ovs",
		Version:    Version,
		IfaceTypes: []string{string(nmstate.TypeOvsBridge), string(nmstate.TypeOvsIface)},
		Roles:      []string{"query-and-apply"},
	}
}

// QueryNetworkState lists every OVS bridge with its ports.
func (p *Plugin) QueryNetworkState(ctx context.Context, _ json.RawMessage) (*nmstate.NetworkState, error) {
	c, err := ovsdb.Dial("unix", p.DatabaseSocket)
	if err != nil {
		return nil, nperr.PluginFailure.Newf("dialing ovsdb-server: %w", err)
	}
	defer c.Close()

	bridges, err := c.Transact(ctx, database, []ovsdb.TransactOp{
		ovsdb.Select{Table: "Bridge"},
	})
	if err != nil {
		return nil, nperr.PluginFailure.Newf("selecting bridges: %w", err)
	}
	ports, err := c.Transact(ctx, database, []ovsdb.TransactOp{
		ovsdb.Select{Table: "Port"},
	})
	if err != nil {
		return nil, nperr.PluginFailure.Newf("selecting ports: %w", err)
	}

	portNames := rowNamesByUUID(ports)
	ns := &nmstate.NetworkState{Version: nmstate.CurrentSchemaVersion}
	for _, row := range bridges {
		name, _ := row["name"].(string)
		if name == "" {
			continue
		}
		bridge := &nmstate.Interface{
			Base: nmstate.BaseInterface{
				Name:  name,
				Type:  nmstate.TypeOvsBridge,
				State: nmstate.StateUp,
			},
			OvsBridge: &nmstate.OvsBridgeConfig{},
		}
		for _, portName := range rowRefNames(row["ports"], portNames) {
			bridge.OvsBridge.Port = append(bridge.OvsBridge.Port, nmstate.OvsBridgePortConfig{Name: portName})
			if portName == name {
				// The internal port sharing the bridge's name is the
				// bridge's own kernel-visible leg.
				continue
			}
			ns.Interfaces = append(ns.Interfaces, &nmstate.Interface{
				Base: nmstate.BaseInterface{
					Name:           portName,
					Type:           nmstate.TypeOvsIface,
					State:          nmstate.StateUp,
					Controller:     name,
					ControllerType: nmstate.TypeOvsBridge,
				},
			})
		}
		ns.Interfaces = append(ns.Interfaces, bridge)
	}
	return ns, nil
}

// rowNamesByUUID maps a table's row uuid -> its name column.
func rowNamesByUUID(rows []ovsdb.Row) map[string]string {
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		name, _ := row["name"].(string)
		uuid := refUUID(row["_uuid"])
		if name != "" && uuid != "" {
			out[uuid] = name
		}
	}
	return out
}

// refUUID unpacks OVSDB's ["uuid", "<id>"] pair encoding.
func refUUID(v interface{}) string {
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return ""
	}
	tag, _ := pair[0].(string)
	id, _ := pair[1].(string)
	if tag != "uuid" {
		return ""
	}
	return id
}

// rowRefNames resolves a column holding either one uuid pair or a
// ["set", [pairs...]] of them into names via the lookup table.
func rowRefNames(v interface{}, names map[string]string) []string {
	if id := refUUID(v); id != "" {
		if name, ok := names[id]; ok {
			return []string{name}
		}
		return nil
	}
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return nil
	}
	if tag, _ := pair[0].(string); tag != "set" {
		return nil
	}
	members, ok := pair[1].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, member := range members {
		if name, ok := names[refUUID(member)]; ok {
			out = append(out, name)
		}
	}
	return out
}

// ApplyNetworkState reconciles ovs-bridge and ovs-interface entries.
// The pinned ovsdb client only speaks select, so mutations go through
// ovs-vsctl; its --may-exist/--if-exists forms keep the calls idempotent
// across apply retries.
func (p *Plugin) ApplyNetworkState(ctx context.Context, desired *nmstate.NetworkState) (*nmstate.NetworkState, error) {
	for _, iface := range desired.Interfaces {
		var err error
		switch iface.Base.Type {
		case nmstate.TypeOvsBridge:
			err = p.applyBridge(ctx, iface)
		case nmstate.TypeOvsIface:
			err = p.applyPort(ctx, iface)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return p.QueryNetworkState(ctx, nil)
}

func (p *Plugin) applyBridge(ctx context.Context, iface *nmstate.Interface) error {
	name := iface.Base.Name
	if iface.Base.State.IsAbsent() {
		dlog.Infof(ctx, "removing ovs bridge %s", name)
		return p.vsctl(ctx, "--if-exists", "del-br", name)
	}
	if err := p.vsctl(ctx, "--may-exist", "add-br", name); err != nil {
		return err
	}
	if iface.OvsBridge == nil {
		return nil
	}
	for _, port := range iface.OvsBridge.Port {
		if port.Name == name {
			continue
		}
		if err := p.vsctl(ctx, "--may-exist", "add-port", name, port.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) applyPort(ctx context.Context, iface *nmstate.Interface) error {
	name := iface.Base.Name
	if iface.Base.State.IsAbsent() {
		dlog.Infof(ctx, "removing ovs port %s", name)
		return p.vsctl(ctx, "--if-exists", "del-port", name)
	}
	if iface.Base.Controller == "" {
		return nperr.InvalidArgument.Newf("ovs-interface %s needs a controller", name)
	}
	return p.vsctl(ctx, "--may-exist", "add-port", iface.Base.Controller, name,
		"--", "set", "Interface", name, "type=internal")
}

func (p *Plugin) vsctl(ctx context.Context, args ...string) error {
	cmd := dexec.CommandContext(ctx, "ovs-vsctl", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nperr.PluginFailure.Newf("ovs-vsctl %v: %s: %w", args, out, err)
	}
	return nil
}
