package nmstate

// GenerateRevert builds the document that undoes desired, restoring
// preApply (the full running state captured right before desired was
// applied): every interface desired touched is reverted to its pre-apply
// incarnation; one that didn't exist before is reverted to absent so
// undoing a create removes what was created.
func GenerateRevert(desired, preApply *NetworkState) *NetworkState {
	ret := &NetworkState{Version: CurrentSchemaVersion}
	preIdx := preApply.Index()
	seen := make(map[IfaceKey]bool, len(desired.Interfaces))

	for _, d := range desired.Interfaces {
		key := d.Key()
		seen[key] = true
		if pre, ok := preIdx[key]; ok {
			ret.Interfaces = append(ret.Interfaces, pre.clone())
			continue
		}
		if !d.Base.State.IsAbsent() {
			ret.Interfaces = append(ret.Interfaces, &Interface{Base: BaseInterface{
				Name:  d.Base.Name,
				Type:  d.Base.Type,
				State: StateAbsent,
			}})
		}
	}

	ret.Routes = generateRouteRevert(desired.Routes, preApply.Routes)
	return ret
}

func generateRouteRevert(desired, preApply []Route) []Route {
	preByKey := make(map[string]Route, len(preApply))
	for _, r := range preApply {
		preByKey[r.key()] = r
	}
	var out []Route
	for _, r := range desired {
		if pre, ok := preByKey[r.key()]; ok {
			out = append(out, pre)
			continue
		}
		if r.State != "absent" {
			reverted := r
			reverted.State = "absent"
			out = append(out, reverted)
		}
	}
	return out
}
