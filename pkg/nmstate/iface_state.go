package nmstate

// InterfaceState is the desired/observed administrative state of an
// interface. The zero value is intentionally invalid so callers must set
// it explicitly and think about Ignore/Unknown handling.
type InterfaceState string

const (
	StateUp         InterfaceState = "up"
	StateDown       InterfaceState = "down"
	StateAbsent     InterfaceState = "absent"
	StateIgnore     InterfaceState = "ignore"
	StateUpIgnore   InterfaceState = "up-ignore"
	StateDownIgnore InterfaceState = "down-ignore"
	StateUnknown    InterfaceState = "unknown"
)

// IsIgnore reports whether this state excludes the interface from apply
// and verify.
func (s InterfaceState) IsIgnore() bool {
	switch s {
	case StateIgnore, StateUpIgnore, StateDownIgnore, StateUnknown, "":
		return true
	default:
		return false
	}
}

func (s InterfaceState) IsUp() bool     { return s == StateUp }
func (s InterfaceState) IsDown() bool   { return s == StateDown }
func (s InterfaceState) IsAbsent() bool { return s == StateAbsent }
