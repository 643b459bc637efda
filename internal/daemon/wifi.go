package daemon

import (
	"context"
	"encoding/json"

	"github.com/nispor/nipart/pkg/clientapi"
	"github.com/nispor/nipart/pkg/event"
	"github.com/nispor/nipart/pkg/nperr"
	"github.com/nispor/nipart/pkg/plugincmd"
)

// WifiNetwork is one entry of a wifi-scan reply: what a Wifi-role
// plugin reports about a visible access point. The wire shapes live in
// pkg/clientapi.
type WifiNetwork = clientapi.WifiNetwork

// WifiConnectRequest is the payload of a wifi-connect command.
type WifiConnectRequest = clientapi.WifiConnectRequest

// BuildWifiScanWorkflow fans a wifi-scan out to every Wifi-role plugin
// and concatenates their visible-network lists.
func BuildWifiScanWorkflow(reg *Registry) *Workflow {
	wf := NewWorkflow("wifi-scan")
	wf.Tasks = []*Task{
		{
			Kind: "wifi-scan",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				expected := reg.CountWithRole(RoleWifi)
				if expected == 0 {
					return nil, 0, nperr.NoSupport.New("no wifi plugin connected")
				}
				e, err := newCommandEvent(event.ActionRequest, event.Group(string(RoleWifi)), plugincmd.WifiScan, nil, defaultPluginTimeout)
				return e, expected, err
			},
			Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
				var all []WifiNetwork
				for _, reply := range replies {
					var networks []WifiNetwork
					if err := json.Unmarshal(reply.Payload, &networks); err != nil {
						continue
					}
					all = append(all, networks...)
				}
				share["result"] = all
				return nil
			},
			Timeout: defaultPluginTimeout,
		},
	}
	return wf
}

// BuildWifiConnectWorkflow asks the Wifi-role plugins to associate with
// an access point. Exactly one plugin is expected to own the SSID; the
// rest reply NoSupport and are ignored as long as one succeeds.
func BuildWifiConnectWorkflow(reg *Registry, req WifiConnectRequest) *Workflow {
	wf := NewWorkflow("wifi-connect")
	wf.Tasks = []*Task{
		{
			Kind: "wifi-connect",
			GenRequest: func(share ShareData) (*event.Event, int, error) {
				expected := reg.CountWithRole(RoleWifi)
				if expected == 0 {
					return nil, 0, nperr.NoSupport.New("no wifi plugin connected")
				}
				e, err := newCommandEvent(event.ActionRequest, event.Group(string(RoleWifi)), plugincmd.WifiConnect, req, defaultPluginTimeout)
				return e, expected, err
			},
			Callback: func(ctx context.Context, task *Task, share ShareData, replies []*event.Event) error {
				var lastErr error
				for _, reply := range replies {
					var failure nperr.ErrorReply
					if err := json.Unmarshal(reply.Payload, &failure); err == nil && failure.Kind != "" {
						lastErr = nperr.PluginFailure.Newf("%s: %s", reply.Src.Name, failure.Message)
						continue
					}
					share["result"] = "connected"
					return nil
				}
				if lastErr != nil {
					return lastErr
				}
				return nperr.NoSupport.Newf("no wifi plugin accepted ssid %q", req.Ssid)
			},
			Timeout: defaultPluginTimeout,
		},
	}
	return wf
}
