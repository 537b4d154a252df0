package streaming

import (
	"context"
	"sync/atomic"
)

// DropPolicy controls what happens to a non-terminal frame when the
// consumer can't keep up and the buffer is full.
type DropPolicy int

const (
	// DropNone blocks the sender until the consumer drains (default: never
	// used for terminal frames, which this package never drops regardless
	// of policy).
	DropNone DropPolicy = iota
	// DropOldestProgress discards the oldest buffered progress frame to make
	// room, coalescing progress updates under back-pressure.
	DropOldestProgress
)

// Config tunes a Session's buffering behavior.
type Config struct {
	BufferSize int
	Policy     DropPolicy
}

func defaultConfig(cfg Config) Config {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32
	}
	return cfg
}

// Session is one workflow run's ordered event stream. Emit is called by the
// orchestrator; Frames is consumed by the transport (SSE handler, etc.).
// Only FrameProgress is ever coalesced under back-pressure; start/complete/
// error/payload frames are always delivered.
type Session struct {
	ch     chan Frame
	seq    int64
	cfg    Config
	cancel context.CancelFunc
	ctx    context.Context
}

// NewSession opens a streaming session bound to ctx; cancelling ctx (e.g. on
// client disconnect) stops delivery and callers should treat the workflow as
// cancelled.
func NewSession(ctx context.Context, cfg Config) *Session {
	cfg = defaultConfig(cfg)
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		ch:     make(chan Frame, cfg.BufferSize),
		cfg:    cfg,
		ctx:    sctx,
		cancel: cancel,
	}
}

// Frames returns the channel transports should range over.
func (s *Session) Frames() <-chan Frame {
	return s.ch
}

// Context returns the session's cancellation context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Cancel stops the session, e.g. when the client disconnects.
func (s *Session) Cancel() {
	s.cancel()
}

// Emit sends a frame, assigning it the next sequence number. Under
// back-pressure, a progress frame may be dropped per the configured policy
// (replacing the previously buffered progress frame); every other frame
// kind always blocks until there's room or the session is cancelled.
func (s *Session) Emit(f Frame) {
	f.Seq = atomic.AddInt64(&s.seq, 1)

	if f.Kind == FrameProgress && s.cfg.Policy == DropOldestProgress {
		select {
		case s.ch <- f:
			return
		default:
			// Buffer full: drop the oldest buffered frame if it's also a
			// progress frame, then retry once.
			select {
			case old := <-s.ch:
				if old.Kind != FrameProgress {
					// Never drop a non-progress frame; put it back and fall
					// through to a blocking send of the new frame.
					s.blockingSend(f, &old)
					return
				}
			default:
			}
			s.blockingSend(f, nil)
			return
		}
	}

	s.blockingSend(f, nil)
}

func (s *Session) blockingSend(f Frame, requeue *Frame) {
	if requeue != nil {
		select {
		case s.ch <- *requeue:
		case <-s.ctx.Done():
			return
		}
	}
	select {
	case s.ch <- f:
	case <-s.ctx.Done():
	}
}

// Close closes the outbound channel; callers must not Emit after Close.
func (s *Session) Close() {
	close(s.ch)
}
