// Package plugincmd names the typed commands exchanged across the
// daemon-to-plugin connection: the vocabulary a plugin
// worker dispatches on and the daemon-side plugin connection tags onto
// outgoing events via Event.Command.
package plugincmd

// Command is one of the fixed verbs a plugin subprocess understands.
type Command string

const (
	QueryPluginInfo   Command = "query-plugin-info"
	QueryNetworkState Command = "query-network-state"
	ApplyNetworkState Command = "apply-network-state"
	ChangeLogLevel    Command = "change-log-level"
	QueryLogLevel     Command = "query-log-level"
	WifiScan          Command = "wifi-scan"
	WifiConnect       Command = "wifi-connect"
	CreateCommit      Command = "create-commit"
	QueryCommits      Command = "query-commits"
	RemoveCommits     Command = "remove-commits"
	Quit              Command = "quit"
)
