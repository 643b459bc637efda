package daemon

import (
	"sync"

	"github.com/nispor/nipart/pkg/nmstate"
)

// Role is a capability a plugin advertises; it determines which events
// are routed to it by Group(role) addressing.
type Role string

const (
	RoleCommander      Role = "commander"
	RoleKernel         Role = "kernel"
	RoleMonitor        Role = "monitor"
	RoleQueryAndApply  Role = "query-and-apply"
	RoleDhcp           Role = "dhcp"
	RoleApplyDhcpLease Role = "apply-dhcp-lease"
	RoleCommit         Role = "commit"
	RoleWifi           Role = "wifi"
)

// PluginInfo is the handshake payload a plugin replies with to
// QueryPluginInfo.
type PluginInfo struct {
	Name       string                   `json:"name"`
	Version    string                   `json:"version"`
	IfaceTypes []nmstate.InterfaceType  `json:"iface-types"`
	Roles      []Role                   `json:"roles"`
}

// Registry is the set of connected plugins: an entry is added at the
// plugin's handshake and removed when its connection drops.
// It satisfies pkg/event.Registry.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]PluginInfo
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]PluginInfo)}
}

// Register adds or replaces a plugin's advertised info, called once per
// plugin at connection handshake time.
func (r *Registry) Register(info PluginInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[info.Name] = info
}

// Unregister removes a plugin, called when its connection drops.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, name)
}

func (r *Registry) HasPlugin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[name]
	return ok
}

func (r *Registry) PluginsWithRole(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, info := range r.plugins {
		for _, r := range info.Roles {
			if string(r) == role {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

func (r *Registry) AllPluginNames(exclude string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		if name != exclude {
			out = append(out, name)
		}
	}
	return out
}

// OwnerOf returns a registered plugin that owns ifaceType; when several
// plugins own it, which one is returned is not defined.
func (r *Registry) OwnerOf(ifaceType nmstate.InterfaceType) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, info := range r.plugins {
		for _, t := range info.IfaceTypes {
			if t == ifaceType {
				return name, true
			}
		}
	}
	return "", false
}

// CountWithRole reports how many plugins advertise role, used to set a
// Group-addressed request's expected reply count.
func (r *Registry) CountWithRole(role Role) int {
	return len(r.PluginsWithRole(string(role)))
}
