package nmstate

// Sentinel strings nipart substitutes for secret fields on output. A
// caller supplying HiddenSecret back in a desired state leaves the
// current value untouched rather than overwriting it with the literal
// sentinel.
const (
	HiddenSecret  = "<_password_hidden_by_nmstate>"
	UnknownSecret = "<_password_unknown_to_nmstate>"
)

// HideSecrets replaces every known secret field across ns with
// HiddenSecret, run before a query result leaves the daemon.
// It is idempotent: calling it twice yields the same document, since a
// field already equal to HiddenSecret or UnknownSecret is left alone.
func (ns *NetworkState) HideSecrets() {
	for _, iface := range ns.Interfaces {
		hideInterfaceSecrets(iface)
	}
}

func hideInterfaceSecrets(iface *Interface) {
	if iface.Wifi != nil && !isSentinel(iface.Wifi.Psk) {
		if iface.Wifi.Psk != "" {
			iface.Wifi.Psk = HiddenSecret
		}
	}
	if iface.Wireguard != nil && !isSentinel(iface.Wireguard.PrivateKey) {
		if iface.Wireguard.PrivateKey != "" {
			iface.Wireguard.PrivateKey = HiddenSecret
		}
	}
}

func isSentinel(v string) bool {
	return v == HiddenSecret || v == UnknownSecret
}

// ResolveSecrets copies forward any secret fields the desired side left as
// HiddenSecret from the corresponding current-side interface, so applying
// a state nipart itself produced back doesn't blow away a live PSK or
// private key with the sentinel string. A secret that the current side has no
// record of (e.g. the interface didn't previously exist) is set to
// UnknownSecret; neither this function nor its caller in the apply
// workflow rejects that value.
func ResolveSecrets(desired, current *NetworkState) {
	if current == nil {
		return
	}
	idx := current.Index()
	for _, iface := range desired.Interfaces {
		cur, ok := idx[iface.Key()]
		if !ok {
			markUnresolvedSecrets(iface)
			continue
		}
		resolveInterfaceSecrets(iface, cur)
	}
}

func resolveInterfaceSecrets(desired, current *Interface) {
	if desired.Wifi != nil {
		if desired.Wifi.Psk == HiddenSecret {
			if current.Wifi != nil {
				desired.Wifi.Psk = current.Wifi.Psk
			} else {
				desired.Wifi.Psk = UnknownSecret
			}
		}
	}
	if desired.Wireguard != nil {
		if desired.Wireguard.PrivateKey == HiddenSecret {
			if current.Wireguard != nil {
				desired.Wireguard.PrivateKey = current.Wireguard.PrivateKey
			} else {
				desired.Wireguard.PrivateKey = UnknownSecret
			}
		}
	}
}

func markUnresolvedSecrets(iface *Interface) {
	if iface.Wifi != nil && iface.Wifi.Psk == HiddenSecret {
		iface.Wifi.Psk = UnknownSecret
	}
	if iface.Wireguard != nil && iface.Wireguard.PrivateKey == HiddenSecret {
		iface.Wireguard.PrivateKey = UnknownSecret
	}
}
