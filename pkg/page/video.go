package page

import (
	"sync"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
)

// RemoteVideo is a video element mirrored from the page agent's reports.
type RemoteVideo struct {
	mu       sync.RWMutex
	state    protocol.VideoState
	viewport func() geometry.Size
}

func newRemoteVideo(state protocol.VideoState, viewport func() geometry.Size) *RemoteVideo {
	state.Present = true
	return &RemoteVideo{state: state, viewport: viewport}
}

// Update replaces the mirrored state. The id never changes.
func (v *RemoteVideo) Update(state protocol.VideoState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	state.ID = v.state.ID
	v.state = state
}

// SetRect updates only the displayed rect.
func (v *RemoteVideo) SetRect(r geometry.Rect) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Rect = r
}

// Detach marks the element as removed.
func (v *RemoteVideo) Detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Present = false
}

// State returns the mirrored state.
func (v *RemoteVideo) State() protocol.VideoState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// ID implements scheduler.VideoSource.
func (v *RemoteVideo) ID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.ID
}

// Present implements scheduler.VideoSource.
func (v *RemoteVideo) Present() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Present
}

// HasCurrentData implements scheduler.VideoSource.
func (v *RemoteVideo) HasCurrentData() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.HasCurrentData()
}

// IntrinsicSize implements geometry.Viewable.
func (v *RemoteVideo) IntrinsicSize() geometry.Size {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return geometry.Size{Width: v.state.Width, Height: v.state.Height}
}

// DisplayRect implements geometry.Viewable.
func (v *RemoteVideo) DisplayRect() geometry.Rect {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Rect
}

// Viewport implements scheduler.VideoSource.
func (v *RemoteVideo) Viewport() geometry.Size {
	if v.viewport == nil {
		return geometry.Size{}
	}
	return v.viewport()
}

// Playback implements scheduler.VideoSource.
func (v *RemoteVideo) Playback() scheduler.Playback {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return scheduler.Playback{
		Paused:      v.state.Paused,
		Ended:       v.state.Ended,
		CurrentTime: v.state.CurrentTime,
	}
}
