package nmstate

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Interface is not a Go sum type, so we hand-roll (de)serialization: the
// document's flat per-interface map is split between the common
// BaseInterface fields, the one type-specific subtree selected by
// base.type, and anything left over goes to Raw.

var baseKeys = map[string]bool{
	"name": true, "type": true, "state": true, "up-priority": true,
	"controller": true, "controller-type": true, "mac-address": true,
	"permanent-mac-address": true, "mtu": true, "min-mtu": true,
	"max-mtu": true, "ipv4": true, "ipv6": true,
}

func toMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// decodeInterface splits a raw document map into an Interface.
func decodeInterface(m map[string]interface{}) (*Interface, error) {
	iface := &Interface{}
	if err := fromMap(filterKeys(m, baseKeys, true), &iface.Base); err != nil {
		return nil, err
	}
	rest := filterKeys(m, baseKeys, false)

	switch iface.Base.Type {
	case TypeEthernet, TypeVeth:
		if v, ok := rest["ethernet"]; ok {
			var c EthernetConfig
			if err := fromMap(toMapAny(v), &c); err == nil {
				iface.Ethernet = &c
			}
			delete(rest, "ethernet")
		}
		if v, ok := rest["veth"]; ok {
			var c VethConfig
			if err := fromMap(toMapAny(v), &c); err == nil {
				iface.Veth = &c
			}
			delete(rest, "veth")
		}
	case TypeBond:
		if v, ok := rest["link-aggregation"]; ok {
			var c BondConfig
			_ = fromMap(toMapAny(v), &c)
			iface.Bond = &c
			delete(rest, "link-aggregation")
		}
	case TypeLinuxBridge:
		if v, ok := rest["bridge"]; ok {
			var c LinuxBridgeConfig
			_ = fromMap(toMapAny(v), &c)
			iface.LinuxBridge = &c
			delete(rest, "bridge")
		}
	case TypeOvsBridge:
		if v, ok := rest["bridge"]; ok {
			var c OvsBridgeConfig
			_ = fromMap(toMapAny(v), &c)
			iface.OvsBridge = &c
			delete(rest, "bridge")
		}
	case TypeVlan:
		if v, ok := rest["vlan"]; ok {
			var c VlanConfig
			_ = fromMap(toMapAny(v), &c)
			iface.Vlan = &c
			delete(rest, "vlan")
		}
	case TypeWifiCfg, TypeWifiPhy:
		if v, ok := rest["wifi"]; ok {
			var c WifiConfig
			_ = fromMap(toMapAny(v), &c)
			iface.Wifi = &c
			delete(rest, "wifi")
		}
	case TypeWireguard:
		if v, ok := rest["wireguard"]; ok {
			var c WireguardConfig
			_ = fromMap(toMapAny(v), &c)
			iface.Wireguard = &c
			delete(rest, "wireguard")
		}
	}
	if len(rest) > 0 {
		iface.Raw = rest
	}
	return iface, nil
}

func toMapAny(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	return m
}

func filterKeys(m map[string]interface{}, keys map[string]bool, keep bool) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range m {
		if keys[k] == keep {
			out[k] = v
		}
	}
	return out
}

// encodeInterface reassembles the flat wire map for an Interface.
func encodeInterface(iface *Interface) (map[string]interface{}, error) {
	m, err := toMap(iface.Base)
	if err != nil {
		return nil, err
	}
	add := func(key string, v interface{}) {
		if v == nil {
			return
		}
		sub, err := toMap(v)
		if err == nil {
			m[key] = sub
		}
	}
	if iface.Ethernet != nil {
		add("ethernet", iface.Ethernet)
	}
	if iface.Veth != nil {
		add("veth", iface.Veth)
	}
	if iface.Bond != nil {
		add("link-aggregation", iface.Bond)
	}
	if iface.LinuxBridge != nil {
		add("bridge", iface.LinuxBridge)
	}
	if iface.OvsBridge != nil {
		add("bridge", iface.OvsBridge)
	}
	if iface.Vlan != nil {
		add("vlan", iface.Vlan)
	}
	if iface.Wifi != nil {
		add("wifi", iface.Wifi)
	}
	if iface.Wireguard != nil {
		add("wireguard", iface.Wireguard)
	}
	for k, v := range iface.Raw {
		m[k] = v
	}
	return m, nil
}

func (i *Interface) MarshalYAML() (interface{}, error) {
	return encodeInterface(i)
}

func (i *Interface) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]interface{}
	if err := node.Decode(&m); err != nil {
		return err
	}
	decoded, err := decodeInterface(m)
	if err != nil {
		return err
	}
	*i = *decoded
	return nil
}

func (i Interface) MarshalJSON() ([]byte, error) {
	m, err := encodeInterface(&i)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (i *Interface) UnmarshalJSON(b []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	decoded, err := decodeInterface(m)
	if err != nil {
		return err
	}
	*i = *decoded
	return nil
}
