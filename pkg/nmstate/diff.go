package nmstate

import "encoding/json"

// GenDiff computes the subset of desired that differs from current:
// every changed interface is emitted with its name, type and state always
// present, plus only the fields whose value actually changed. An
// interface present in desired but absent from current is emitted
// unchanged in full, since there is nothing to diff against.
//
// Both sides are canonicalized identically before differencing so that
// a host-form prefix on one side (192.0.2.1/24 vs 192.0.2.0/24) never
// shows up as a spurious change.
func GenDiff(desired, current *NetworkState) (*NetworkState, error) {
	desired = desired.Clone()
	if err := desired.Sanitize(false); err != nil {
		return nil, err
	}
	current = current.Clone()
	if err := current.Sanitize(false); err != nil {
		return nil, err
	}

	ret := &NetworkState{Version: CurrentSchemaVersion}
	if desired.Description != current.Description {
		ret.Description = desired.Description
	}

	curIdx := current.Index()
	for _, d := range desired.Interfaces {
		c := curIdx[d.Key()]
		if c == nil {
			ret.Interfaces = append(ret.Interfaces, d.clone())
			continue
		}
		diffIface, changed, err := diffInterface(d, c)
		if err != nil {
			return nil, err
		}
		if changed {
			ret.Interfaces = append(ret.Interfaces, diffIface)
		}
	}

	ret.Routes = diffRoutes(desired.Routes, current.Routes)
	return ret, nil
}

func diffInterface(desired, current *Interface) (*Interface, bool, error) {
	desiredMap, err := encodeInterface(desired)
	if err != nil {
		return nil, false, err
	}
	currentMap, err := encodeInterface(current)
	if err != nil {
		return nil, false, err
	}

	diffVal, changed := genDiffValue(desiredMap, currentMap)
	if !changed {
		return nil, false, nil
	}
	diffMap, _ := diffVal.(map[string]interface{})
	if diffMap == nil {
		diffMap = map[string]interface{}{}
	}
	diffMap["name"] = desired.Base.Name
	diffMap["type"] = string(desired.Base.Type)
	diffMap["state"] = string(desired.Base.State)

	out, err := decodeInterface(diffMap)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// genDiffValue recursively compares two decoded JSON values and returns
// the subtree of a that differs from b, plus whether any difference was
// found. Maps are compared key-by-key (b's extra keys are irrelevant);
// any other kind of value (slice, scalar) is compared wholesale, so
// object fields diff at leaf granularity and lists move as one unit.
func genDiffValue(a, b interface{}) (interface{}, bool) {
	aMap, aIsMap := a.(map[string]interface{})
	bMap, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		out := map[string]interface{}{}
		changed := false
		for k, av := range aMap {
			bv, ok := bMap[k]
			if !ok {
				out[k] = av
				changed = true
				continue
			}
			sub, subChanged := genDiffValue(av, bv)
			if subChanged {
				out[k] = sub
				changed = true
			}
		}
		return out, changed
	}
	return a, !jsonEqual(a, b)
}

func jsonEqual(a, b interface{}) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

func diffRoutes(desired, current []Route) []Route {
	curByKey := make(map[string]Route, len(current))
	for _, r := range current {
		curByKey[r.key()] = r
	}
	var out []Route
	for _, r := range desired {
		c, ok := curByKey[r.key()]
		if !ok || !routeEqual(r, c) {
			out = append(out, r)
		}
	}
	return out
}

func routeEqual(a, b Route) bool {
	return jsonEqual(a, b)
}
