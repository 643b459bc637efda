package nmstate

import "sort"

// GenStateForApply orders merged's interfaces into the sequence nipart's
// plugins should apply them in: lower up-priority first, then name, so a
// controller with up-priority 0 and a port with up-priority 1 come out in
// dependency order even though nipart never inspects the controller/port
// relationship itself for ordering purposes.
func GenStateForApply(merged *NetworkState) []*Interface {
	out := make([]*Interface, len(merged.Interfaces))
	copy(out, merged.Interfaces)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Base.UpPriority != b.Base.UpPriority {
			return a.Base.UpPriority < b.Base.UpPriority
		}
		return a.Base.Name < b.Base.Name
	})
	return out
}

// ForVerify projects merged down to the interfaces Verify should inspect:
// everything not in an Ignore state.
func ForVerify(merged *NetworkState) []*Interface {
	out := make([]*Interface, 0, len(merged.Interfaces))
	for _, iface := range merged.Interfaces {
		if iface.Base.State.IsIgnore() {
			continue
		}
		out = append(out, iface)
	}
	return out
}

// GenStateForVerify builds the document the post-apply observation is
// compared against: the merged view restricted
// to what the caller actually asked about — interfaces named in desired,
// plus ones the post-merge passes synthesized (a created veth peer is in
// merged but in neither desired nor the pre-apply current). Interfaces
// merely carried over from current are the kernel's business and are
// not re-checked.
func GenStateForVerify(merged, desired, preApply *NetworkState) *NetworkState {
	desiredIdx := desired.Index()
	preIdx := preApply.Index()
	out := &NetworkState{Version: CurrentSchemaVersion, Routes: cloneRoutes(desired.Routes)}
	for _, iface := range ForVerify(merged) {
		key := iface.Key()
		if _, wanted := desiredIdx[key]; !wanted {
			if _, preExisting := preIdx[key]; preExisting {
				continue
			}
		}
		out.Interfaces = append(out.Interfaces, iface.clone())
	}
	return out
}
