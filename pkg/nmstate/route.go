package nmstate

import "fmt"

// Route is a single kernel route entry.
type Route struct {
	Destination    string `yaml:"destination,omitempty" json:"destination,omitempty"`
	NextHopIface   string `yaml:"next-hop-interface,omitempty" json:"next-hop-interface,omitempty"`
	NextHopAddress string `yaml:"next-hop-address,omitempty" json:"next-hop-address,omitempty"`
	Metric         int    `yaml:"metric,omitempty" json:"metric,omitempty"`
	TableID        int    `yaml:"table-id,omitempty" json:"table-id,omitempty"`
	RouteType      string `yaml:"route-type,omitempty" json:"route-type,omitempty"`
	State          string `yaml:"state,omitempty" json:"state,omitempty"`
}

// key identifies a route for set-membership comparisons ignoring state,
// which is only meaningful for apply/absent semantics. An unset table id
// means the kernel's main table (254).
func (r Route) key() string {
	table := r.TableID
	if table == 0 {
		table = 254
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d", r.Destination, r.NextHopIface, r.NextHopAddress, table, r.Metric)
}

func cloneRoutes(in []Route) []Route {
	if in == nil {
		return nil
	}
	out := make([]Route, len(in))
	copy(out, in)
	return out
}

// mergeRoutes overrides base's route set with other's: a
// route present in other replaces any base route with the same key, and
// the union is returned. Absent-state routes from other remove the
// matching base route entirely.
func mergeRoutes(base, other []Route) []Route {
	if other == nil {
		return cloneRoutes(base)
	}
	byKey := make(map[string]Route, len(base))
	order := make([]string, 0, len(base))
	for _, r := range base {
		k := r.key()
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = r
	}
	for _, r := range other {
		k := r.key()
		if r.State == "absent" {
			delete(byKey, k)
			continue
		}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = r
	}
	out := make([]Route, 0, len(order))
	for _, k := range order {
		if r, ok := byKey[k]; ok {
			out = append(out, r)
		}
	}
	return out
}
