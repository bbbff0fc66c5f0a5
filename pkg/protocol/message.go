// Package protocol defines the WebSocket messages exchanged between the
// page agent and the blursafe server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
)

// ErrNoData is returned when a message that needs a payload has none.
var ErrNoData = errors.New("protocol: message has no data")

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Page → Server messages
	TypeHello        MessageType = "hello"         // Page connected, lists existing videos
	TypeVideoAdded   MessageType = "video_added"   // New video element inserted
	TypeVideoRemoved MessageType = "video_removed" // Video element removed
	TypeVideoState   MessageType = "video_state"   // Playback and layout update
	TypeViewport     MessageType = "viewport"      // Resize or scroll
	TypeFrame        MessageType = "frame"         // JPEG frame for server-side detection
	TypeEngineReady  MessageType = "engine_ready"  // Page engine loaded
	TypeDetectResult MessageType = "detect_result" // Detection succeeded
	TypeDetectError  MessageType = "detect_error"  // Detection failed
	TypeDetectSkip   MessageType = "detect_skip"   // Detection skipped, not an error
	TypeRefresh      MessageType = "refresh"       // Host asked to restart detection

	// Server → Page messages
	TypeEngineInit   MessageType = "engine_init"   // (Re)initialize the page engine
	TypeDetect       MessageType = "detect"        // Run one detection
	TypeOverlay      MessageType = "overlay"       // Replace one overlay region
	TypeOverlayClear MessageType = "overlay_clear" // Remove one overlay region

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return ErrNoData
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Page → Server Message Types
// =============================================================================

// HaveCurrentData is the HTMLMediaElement readyState at which a frame is
// available for the current position.
const HaveCurrentData = 2

// Engine names the detection model the page runs.
const (
	EngineFaces = "faces"
	EnginePoses = "poses"
)

// HelloData is sent once per page load.
type HelloData struct {
	URL       string        `json:"url"`
	Title     string        `json:"title,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	Engines   []string      `json:"engines,omitempty"` // engines the page can run
	Viewport  geometry.Size `json:"viewport"`
	Videos    []VideoState  `json:"videos,omitempty"` // videos present before the agent loaded
}

// VideoState describes one video element.
type VideoState struct {
	ID          string        `json:"id"`
	Present     bool          `json:"present"`
	ReadyState  int           `json:"ready_state"`
	Width       float64       `json:"width"`  // intrinsic videoWidth
	Height      float64       `json:"height"` // intrinsic videoHeight
	Rect        geometry.Rect `json:"rect"`   // getBoundingClientRect
	Paused      bool          `json:"paused"`
	Ended       bool          `json:"ended"`
	CurrentTime float64       `json:"current_time"`
}

// HasCurrentData reports whether ReadyState reached HaveCurrentData.
func (v VideoState) HasCurrentData() bool {
	return v.ReadyState >= HaveCurrentData
}

// VideoRemovedData names a removed video.
type VideoRemovedData struct {
	ID string `json:"id"`
}

// Viewport change reasons.
const (
	ViewportResize = "resize"
	ViewportScroll = "scroll"
)

// ViewportData reports a window resize or scroll.
type ViewportData struct {
	Reason string        `json:"reason"` // "resize", "scroll"
	Size   geometry.Size `json:"size"`
	Videos []VideoState  `json:"videos,omitempty"` // fresh rects after layout
}

// FrameData contains a video frame
type FrameData struct {
	VideoID string `json:"video_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// EngineReadyData announces a loaded page engine.
type EngineReadyData struct {
	Engine string `json:"engine"`
}

// KeypointData is one pose keypoint in intrinsic pixels.
type KeypointData struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// PoseData is one detected person.
type PoseData struct {
	Score     float64        `json:"score,omitempty"`
	Keypoints []KeypointData `json:"keypoints"`
}

// DetectResultData carries faces or poses for one request.
type DetectResultData struct {
	VideoID string             `json:"video_id"`
	Token   uint64             `json:"token"`
	Faces   []geometry.FaceBox `json:"faces,omitempty"`
	Poses   []PoseData         `json:"poses,omitempty"`
}

// DetectErrorData reports a failed request. Without a VideoID the error
// applies to the page's latest request in flight.
type DetectErrorData struct {
	VideoID string `json:"video_id,omitempty"`
	Token   uint64 `json:"token"`
	Message string `json:"message"`
}

// DetectSkipData reports a request the engine declined.
type DetectSkipData struct {
	VideoID string `json:"video_id"`
	Token   uint64 `json:"token"`
	Reason  string `json:"reason"`
}

// =============================================================================
// Server → Page Message Types
// =============================================================================

// EngineInitData tells the page which engine to load.
type EngineInitData struct {
	Engine       string           `json:"engine"`
	Remote       bool             `json:"remote"` // page runs the model itself
	Cadence      float64          `json:"cadence_hz"`
	Strategy     overlay.Strategy `json:"strategy"`
	DebugMarkers bool             `json:"debug_markers,omitempty"`
	SendFrames   bool             `json:"send_frames,omitempty"`
}

// DetectData asks the page engine for one detection.
type DetectData struct {
	VideoID string `json:"video_id"`
	Token   uint64 `json:"token"`
	Op      string `json:"op"`
}

// OverlayData replaces one overlay region.
type OverlayData = overlay.Region

// OverlayClearData removes one overlay region.
type OverlayClearData struct {
	Key string `json:"key"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
