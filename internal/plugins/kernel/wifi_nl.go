package kernel

import (
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"

	"github.com/nispor/nipart/pkg/nperr"
)

// nl80211 bits needed to tell wireless PHYs apart from plain ethernet;
// the full wifi stack (scan, associate) belongs to the wifi plugin.
const (
	nl80211FamilyName      = "nl80211"
	nl80211CmdGetInterface = 5
	nl80211AttrIfIndex     = 3
)

// wirelessIfIndexes returns the set of link indexes owned by the
// nl80211 subsystem. A kernel without wireless support yields an empty
// set, not an error.
func wirelessIfIndexes() (map[int32]bool, error) {
	c, err := genetlink.Dial(nil)
	if err != nil {
		return nil, nperr.PluginFailure.New(errors.Wrap(err, "dialing generic netlink"))
	}
	defer c.Close()

	family, err := c.GetFamily(nl80211FamilyName)
	if err != nil {
		// Family not registered: no wireless hardware/driver.
		return map[int32]bool{}, nil
	}

	msgs, err := c.Execute(genetlink.Message{
		Header: genetlink.Header{Command: nl80211CmdGetInterface, Version: family.Version},
	}, family.ID, netlink.Request|netlink.Dump)
	if err != nil {
		return nil, nperr.PluginFailure.New(errors.Wrap(err, "dumping nl80211 interfaces"))
	}

	out := make(map[int32]bool, len(msgs))
	for _, m := range msgs {
		ad, err := netlink.NewAttributeDecoder(m.Data)
		if err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
		for ad.Next() {
			if ad.Type() == nl80211AttrIfIndex {
				out[int32(ad.Uint32())] = true
			}
		}
		if err := ad.Err(); err != nil {
			return nil, nperr.PluginFailure.New(err)
		}
	}
	return out, nil
}
