package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/tsawler/go-netviz/trace"
)

var (
	// ErrPeerDisconnected marks a send that failed because the renderer
	// went away.
	ErrPeerDisconnected = errors.New("peer disconnected")

	// ErrSessionClosed is returned by every send after a failed one.
	ErrSessionClosed = errors.New("session closed after send failure")
)

// KindStats counts what was sent for one message kind.
type KindStats struct {
	Messages int
	Bytes    int64
}

// Stats summarizes a session.
type Stats struct {
	Messages int
	Bytes    int64
	ByKind   map[MessageType]KindStats
}

func (s Stats) String() string {
	var parts []string
	for _, kind := range MessageTypes {
		if ks, ok := s.ByKind[kind]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, ks.Messages))
		}
	}
	return fmt.Sprintf("%d messages, %d bytes (%s)", s.Messages, s.Bytes, strings.Join(parts, ", "))
}

// Session sends one run's messages over w. Every send is synchronous and
// writes exactly one frame; the first write error ends the session.
// A Session is not safe for concurrent use.
type Session struct {
	w     io.Writer
	seq   Sequencer
	err   error
	stats Stats
}

// NewSession creates a session that writes frames to w.
func NewSession(w io.Writer) *Session {
	return &Session{
		w:     w,
		stats: Stats{ByKind: make(map[MessageType]KindStats)},
	}
}

// SendTopology sends topology_init. It must be the first message.
func (s *Session) SendTopology(layers []LayerDescriptor) error {
	return s.send(TopologyInit, layers)
}

// SendInputImage sends input_image_data right after the topology.
func (s *Session) SendInputImage(img InputImage) error {
	return s.send(InputImageData, img)
}

// SendExplanation sends explanation_update.
func (s *Session) SendExplanation(e Explanation) error {
	return s.send(ExplanationUpdate, e)
}

// SendStep sends a trace step as conv_step, pool_step or layer_update.
func (s *Session) SendStep(step trace.Step) error {
	kind, err := StepType(step)
	if err != nil {
		return err
	}
	return s.send(kind, step)
}

// SendComplete sends visualization_complete, after which nothing more may
// be sent.
func (s *Session) SendComplete() error {
	return s.send(VisualizationComplete, nil)
}

// Stats returns a copy of the counters.
func (s *Session) Stats() Stats {
	out := Stats{Messages: s.stats.Messages, Bytes: s.stats.Bytes, ByKind: make(map[MessageType]KindStats, len(s.stats.ByKind))}
	for k, v := range s.stats.ByKind {
		out.ByKind[k] = v
	}
	return out
}

// Err returns the error that closed the session, if any.
func (s *Session) Err() error { return s.err }

func (s *Session) send(kind MessageType, payload interface{}) error {
	if s.err != nil {
		return fmt.Errorf("%w: %v", ErrSessionClosed, s.err)
	}
	if err := s.seq.Allow(kind); err != nil {
		return err
	}

	msg := Message{Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		msg.Data = data
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", kind, err)
	}

	if err := WriteFrame(s.w, body); err != nil {
		s.err = classify(err)
		return s.err
	}

	_ = s.seq.Advance(kind)
	ks := s.stats.ByKind[kind]
	ks.Messages++
	ks.Bytes += int64(len(body) + frameHeaderSize)
	s.stats.ByKind[kind] = ks
	s.stats.Messages++
	s.stats.Bytes += int64(len(body) + frameHeaderSize)
	return nil
}

// IsDisconnect reports whether err means the peer closed or reset the
// connection.
func IsDisconnect(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, ErrPeerDisconnected)
}

func classify(err error) error {
	if IsDisconnect(err) && !errors.Is(err, ErrPeerDisconnected) {
		return fmt.Errorf("%w: %w", ErrPeerDisconnected, err)
	}
	return fmt.Errorf("send failed: %w", err)
}
