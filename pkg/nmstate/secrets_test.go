package nmstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHideSecretsIsIdempotent(t *testing.T) {
	ns := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "wifi0", Type: TypeWifiCfg}, Wifi: &WifiConfig{Ssid: "home", Psk: "hunter2"}},
	}}
	ns.HideSecrets()
	assert.Equal(t, HiddenSecret, ns.Interfaces[0].Wifi.Psk)

	ns.HideSecrets()
	assert.Equal(t, HiddenSecret, ns.Interfaces[0].Wifi.Psk)
}

func TestResolveSecretsRestoresHiddenValue(t *testing.T) {
	current := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "wifi0", Type: TypeWifiCfg}, Wifi: &WifiConfig{Ssid: "home", Psk: "hunter2"}},
	}}
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "wifi0", Type: TypeWifiCfg}, Wifi: &WifiConfig{Ssid: "home", Psk: HiddenSecret}},
	}}
	ResolveSecrets(desired, current)
	assert.Equal(t, "hunter2", desired.Interfaces[0].Wifi.Psk)
}

func TestResolveSecretsUnknownWhenNoCurrent(t *testing.T) {
	desired := &NetworkState{Interfaces: []*Interface{
		{Base: BaseInterface{Name: "wifi0", Type: TypeWifiCfg}, Wifi: &WifiConfig{Ssid: "home", Psk: HiddenSecret}},
	}}
	ResolveSecrets(desired, &NetworkState{})
	assert.Equal(t, UnknownSecret, desired.Interfaces[0].Wifi.Psk)
}
