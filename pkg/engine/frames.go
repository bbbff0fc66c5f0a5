package engine

import (
	"sync"
	"time"
)

// Frame is the latest JPEG uploaded for a video.
type Frame struct {
	VideoID  string
	JPEG     []byte
	Width    int
	Height   int
	ID       uint64
	Received time.Time
}

// FrameStore keeps the newest frame per video.
type FrameStore struct {
	mu     sync.RWMutex
	frames map[string]Frame
	now    func() time.Time
}

// NewFrameStore creates an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{frames: make(map[string]Frame), now: time.Now}
}

// Put replaces the frame for f.VideoID. Frames with a lower ID than the
// stored one are ignored.
func (s *FrameStore) Put(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.frames[f.VideoID]; ok && f.ID != 0 && f.ID < prev.ID {
		return false
	}
	if f.Received.IsZero() {
		f.Received = s.now()
	}
	s.frames[f.VideoID] = f
	return true
}

// Latest returns the newest frame for videoID.
func (s *FrameStore) Latest(videoID string) (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[videoID]
	return f, ok
}

// Delete drops the frame for videoID.
func (s *FrameStore) Delete(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, videoID)
}

// Clear drops every frame.
func (s *FrameStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.frames)
}

// Len returns the number of stored frames.
func (s *FrameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}
