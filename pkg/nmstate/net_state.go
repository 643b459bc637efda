package nmstate

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nispor/nipart/pkg/nperr"
)

// CurrentSchemaVersion is the only document version this module accepts.
const CurrentSchemaVersion = 1

// NetworkState is the top-level declarative document.
type NetworkState struct {
	Version     int         `yaml:"version" json:"version"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Interfaces  []*Interface `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
	Routes      []Route     `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// Deserialize parses a canonical YAML or JSON document. Field names are
// kebab-case; a non-breaking space
// (U+00A0) anywhere in the input is normalized to an ASCII space first.
func Deserialize(doc []byte) (*NetworkState, error) {
	normalized := strings.ReplaceAll(string(doc), " ", " ")
	var ns NetworkState
	if err := yaml.Unmarshal([]byte(normalized), &ns); err != nil {
		return nil, nperr.InvalidArgument.Newf("failed to parse network state document: %w", err)
	}
	if ns.Version == 0 {
		ns.Version = CurrentSchemaVersion
	}
	if ns.Version != CurrentSchemaVersion {
		return nil, nperr.InvalidSchemaVersion.Newf("unsupported schema version %d", ns.Version)
	}
	return &ns, nil
}

// Serialize renders the document back to YAML.
func (ns *NetworkState) Serialize() ([]byte, error) {
	return yaml.Marshal(ns)
}

// SerializeJSON renders the document to JSON, used on the IPC transport
// where the envelope itself is JSON.
func (ns *NetworkState) SerializeJSON() ([]byte, error) {
	return json.Marshal(ns)
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (ns *NetworkState) Clone() *NetworkState {
	if ns == nil {
		return nil
	}
	out := &NetworkState{Version: ns.Version, Description: ns.Description}
	out.Routes = cloneRoutes(ns.Routes)
	out.Interfaces = make([]*Interface, len(ns.Interfaces))
	for i, iface := range ns.Interfaces {
		out.Interfaces[i] = iface.clone()
	}
	return out
}

// Get looks up an interface by its identity key.
func (ns *NetworkState) Get(key IfaceKey) *Interface {
	for _, iface := range ns.Interfaces {
		if iface.Key() == key {
			return iface
		}
	}
	return nil
}

// Index builds a key -> *Interface lookup table.
func (ns *NetworkState) Index() map[IfaceKey]*Interface {
	idx := make(map[IfaceKey]*Interface, len(ns.Interfaces))
	for _, iface := range ns.Interfaces {
		idx[iface.Key()] = iface
	}
	return idx
}

// Upsert inserts iface, replacing any existing entry with the same key.
func (ns *NetworkState) Upsert(iface *Interface) {
	key := iface.Key()
	for i, existing := range ns.Interfaces {
		if existing.Key() == key {
			ns.Interfaces[i] = iface
			return
		}
	}
	ns.Interfaces = append(ns.Interfaces, iface)
}
