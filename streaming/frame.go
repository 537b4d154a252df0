// Package streaming delivers an ordered sequence of progress/result frames
// for a single workflow run to whatever transport the public request surface
// uses (SSE, WebSocket, long-lived JSON).
//
// Built as a buffered channel with high/low water-mark back-pressure and a
// configurable drop policy, generalized from a single Token type to the
// Frame union below.
package streaming

import "github.com/aiser/queryengine/types"

// FrameKind identifies which of the ordered frame types a Frame carries.
type FrameKind string

const (
	FrameStart           FrameKind = "start"
	FrameProgress        FrameKind = "progress"
	FramePartial         FrameKind = "partial"
	FrameChart           FrameKind = "chart"
	FrameInsights        FrameKind = "insights"
	FrameRecommendations FrameKind = "recommendations"
	FrameComplete        FrameKind = "complete"
	FrameError           FrameKind = "error"
)

// Frame is one event in a streaming session, ordered by Seq.
type Frame struct {
	Seq            int64                  `json:"seq"`
	Kind           FrameKind              `json:"kind"`
	RequestID      string                 `json:"request_id,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Progress       *types.Progress        `json:"progress,omitempty"`
	Partial        string                 `json:"partial,omitempty"`
	Chart          *types.ChartConfig     `json:"chart,omitempty"`
	Insights       []types.Insight        `json:"insights,omitempty"`
	Recommendations []types.Recommendation `json:"recommendations,omitempty"`
	Cached         bool                   `json:"cached,omitempty"`
	Message        string                 `json:"message,omitempty"`
	ClassifiedErr  *types.ClassifiedError `json:"classified_error,omitempty"`
}

// IsTerminal reports whether this frame ends the stream.
func (f Frame) IsTerminal() bool {
	return f.Kind == FrameComplete || f.Kind == FrameError
}
