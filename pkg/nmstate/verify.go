package nmstate

import (
	"github.com/sirupsen/logrus"

	"github.com/nispor/nipart/pkg/nperr"
)

// Verify checks that current actually reflects desired after an apply:
// an absent or virtual-and-down
// interface must truly be gone from current (a physical interface merely
// brought administratively down may still linger, which is not an
// error); an up interface must exist in current and match field-by-field,
// and its absence from current is a hard failure; a down interface
// missing from current passes.
func Verify(desired, current *NetworkState) error {
	curIdx := current.Index()
	for _, d := range desired.Interfaces {
		if d.Base.State.IsIgnore() {
			continue
		}
		c := curIdx[d.Key()]

		if d.Base.State.IsAbsent() || (d.IsVirtual() && d.Base.State.IsDown()) {
			if c != nil && c.IsVirtual() {
				return nperr.NewVerificationError("/interfaces/"+d.Base.Name, d, c)
			}
			continue
		}

		if c != nil {
			if d.Base.State.IsUp() {
				if err := verifyInterface(d, c); err != nil {
					return err
				}
			}
			continue
		}
		if d.Base.State.IsUp() {
			return nperr.VerificationError.Newf(
				"failed to find desired interface %s (%s)", d.Base.Name, d.Base.Type)
		}
	}
	return verifyRoutes(desired.Routes, current.Routes)
}

// transientKeys are reported-only fields the kernel owns; a mismatch is
// never an apply failure.
var transientKeys = map[string]bool{
	"min-mtu": true,
	"max-mtu": true,
}

func verifyInterface(desired, current *Interface) error {
	desiredMap, err := encodeInterface(desired)
	if err != nil {
		return err
	}
	currentMap, err := encodeInterface(current)
	if err != nil {
		return err
	}
	if pointer, ok := verifySubset(desiredMap, currentMap, "/interfaces/"+desired.Base.Name); !ok {
		return nperr.NewVerificationError(pointer, desiredMap, currentMap)
	}
	return nil
}

// verifySubset reports whether every field present in desired matches the
// corresponding value in current under domain-aware equality:
// fields current carries that desired didn't mention are ignored;
// transient reported-only fields are skipped; secrets already replaced by
// the hide sentinel are skipped; address lists compare as sets of
// (ip, prefix-length) since the kernel reorders them and ticks their
// lifetimes down; bond option differences log a warning instead of
// failing.
func verifySubset(desired, current map[string]interface{}, pointer string) (string, bool) {
	for k, dv := range desired {
		if transientKeys[k] {
			continue
		}
		if s, ok := dv.(string); ok && isSentinel(s) {
			continue
		}
		cv, ok := current[k]
		if !ok {
			return pointer + "/" + k, false
		}
		if k == "options" {
			if !jsonEqual(dv, cv) {
				logrus.Warnf("bond options mismatch at %s/%s: desired %v, actual %v", pointer, k, dv, cv)
			}
			continue
		}
		if k == "address" {
			if !addressSetEqual(dv, cv) {
				return pointer + "/" + k, false
			}
			continue
		}
		dMap, dIsMap := dv.(map[string]interface{})
		cMap, cIsMap := cv.(map[string]interface{})
		if dIsMap && cIsMap {
			if p, ok := verifySubset(dMap, cMap, pointer+"/"+k); !ok {
				return p, false
			}
			continue
		}
		if !jsonEqual(dv, cv) {
			return pointer + "/" + k, false
		}
	}
	return "", true
}

// addressSetEqual compares two decoded address lists as subset-by-identity:
// every desired (ip, prefix-length) pair must be present in current,
// whatever order the kernel reports them in and whatever their dynamic
// lifetimes have counted down to.
func addressSetEqual(desired, current interface{}) bool {
	dList, ok1 := desired.([]interface{})
	cList, ok2 := current.([]interface{})
	if !ok1 || !ok2 {
		return jsonEqual(desired, current)
	}
	have := make(map[[2]interface{}]bool, len(cList))
	for _, v := range cList {
		if m, ok := v.(map[string]interface{}); ok {
			have[[2]interface{}{m["ip"], m["prefix-length"]}] = true
		}
	}
	for _, v := range dList {
		m, ok := v.(map[string]interface{})
		if !ok {
			return false
		}
		if !have[[2]interface{}{m["ip"], m["prefix-length"]}] {
			return false
		}
	}
	return true
}

// verifyRoutes checks that every desired route (other than one marked
// absent) is present in current.
func verifyRoutes(desired, current []Route) error {
	curByKey := make(map[string]Route, len(current))
	for _, r := range current {
		curByKey[r.key()] = r
	}
	for _, r := range desired {
		if r.State == "absent" {
			if _, ok := curByKey[r.key()]; ok {
				return nperr.VerificationError.Newf("route %s still present, expected absent", r.key())
			}
			continue
		}
		if _, ok := curByKey[r.key()]; !ok {
			return nperr.VerificationError.Newf("desired route %s not found in current state", r.key())
		}
	}
	return nil
}
