package protocol

import (
	"encoding/base64"
	"time"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(videoID string, width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		VideoID: videoID,
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewEngineInitMessage creates an engine_init message
func NewEngineInitMessage(init EngineInitData) (*Message, error) {
	return NewMessage(TypeEngineInit, init)
}

// NewDetectMessage creates a detect request
func NewDetectMessage(videoID string, token uint64, op string) (*Message, error) {
	return NewMessage(TypeDetect, DetectData{VideoID: videoID, Token: token, Op: op})
}

// NewOverlayMessage creates an overlay update
func NewOverlayMessage(region overlay.Region) (*Message, error) {
	return NewMessage(TypeOverlay, region)
}

// NewOverlayClearMessage creates an overlay removal
func NewOverlayClearMessage(key string) (*Message, error) {
	return NewMessage(TypeOverlayClear, OverlayClearData{Key: key})
}

// NewDetectResultMessage creates a face result, as sent by a page engine
func NewDetectResultMessage(videoID string, token uint64, faces []geometry.FaceBox) (*Message, error) {
	return NewMessage(TypeDetectResult, DetectResultData{VideoID: videoID, Token: token, Faces: faces})
}

// NewDetectErrorMessage creates a detection error
func NewDetectErrorMessage(videoID string, token uint64, message string) (*Message, error) {
	return NewMessage(TypeDetectError, DetectErrorData{VideoID: videoID, Token: token, Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

func parse[T any](m *Message) (*T, error) {
	var data T
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) { return parse[HelloData](m) }

// GetVideoState extracts a video state from a message
func (m *Message) GetVideoState() (*VideoState, error) { return parse[VideoState](m) }

// GetVideoRemovedData extracts video removal from a message
func (m *Message) GetVideoRemovedData() (*VideoRemovedData, error) {
	return parse[VideoRemovedData](m)
}

// GetViewportData extracts viewport data from a message
func (m *Message) GetViewportData() (*ViewportData, error) { return parse[ViewportData](m) }

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) { return parse[FrameData](m) }

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetEngineReadyData extracts engine_ready data from a message
func (m *Message) GetEngineReadyData() (*EngineReadyData, error) {
	if len(m.Data) == 0 {
		return &EngineReadyData{}, nil
	}
	return parse[EngineReadyData](m)
}

// GetDetectResultData extracts a detection result from a message
func (m *Message) GetDetectResultData() (*DetectResultData, error) {
	return parse[DetectResultData](m)
}

// GetDetectErrorData extracts a detection error from a message
func (m *Message) GetDetectErrorData() (*DetectErrorData, error) {
	return parse[DetectErrorData](m)
}

// GetDetectSkipData extracts a detection skip from a message
func (m *Message) GetDetectSkipData() (*DetectSkipData, error) {
	return parse[DetectSkipData](m)
}

// GetEngineInitData extracts engine_init data from a message
func (m *Message) GetEngineInitData() (*EngineInitData, error) { return parse[EngineInitData](m) }

// GetDetectData extracts a detect request from a message
func (m *Message) GetDetectData() (*DetectData, error) { return parse[DetectData](m) }

// GetOverlayData extracts an overlay region from a message
func (m *Message) GetOverlayData() (*OverlayData, error) { return parse[OverlayData](m) }

// GetOverlayClearData extracts an overlay removal from a message
func (m *Message) GetOverlayClearData() (*OverlayClearData, error) {
	return parse[OverlayClearData](m)
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	if len(m.Data) == 0 {
		return &PingData{}, nil
	}
	return parse[PingData](m)
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) { return parse[PongData](m) }
