package page

import (
	"github.com/teslashibe/go-blursafe/pkg/engine"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
)

// RemoteTarget draws overlays by sending them to the page agent, which owns
// the shared overlay root and keeps one subtree per key.
type RemoteTarget struct {
	sender engine.Sender
}

// NewRemoteTarget creates a target sending through sender.
func NewRemoteTarget(sender engine.Sender) *RemoteTarget {
	return &RemoteTarget{sender: sender}
}

// Update implements overlay.Target.
func (t *RemoteTarget) Update(region overlay.Region) error {
	msg, err := protocol.NewOverlayMessage(region)
	if err != nil {
		return err
	}
	return t.sender.Send(msg)
}

// Remove implements overlay.Target.
func (t *RemoteTarget) Remove(key string) error {
	msg, err := protocol.NewOverlayClearMessage(key)
	if err != nil {
		return err
	}
	return t.sender.Send(msg)
}
