package protocol

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned for a message the run order does not allow
// next.
var ErrOutOfOrder = errors.New("message out of order")

type phase int

const (
	phaseStart phase = iota
	phaseTopology
	phaseLayers
	phaseDone
)

// Sequencer enforces the run grammar
//
//	topology_init, input_image_data,
//	{explanation_update?, (conv_step|pool_step)* | layer_update}*,
//	visualization_complete
//
// The zero value expects topology_init.
type Sequencer struct {
	phase phase
	last  MessageType
	count int
}

// Allow reports whether kind may come next without recording it.
func (s *Sequencer) Allow(kind MessageType) error {
	var ok bool
	switch s.phase {
	case phaseStart:
		ok = kind == TopologyInit
	case phaseTopology:
		ok = kind == InputImageData
	case phaseLayers:
		// layer boundaries are not marked on the wire, so any layer
		// message may follow any other
		switch kind {
		case ExplanationUpdate, ConvStep, PoolStep, LayerUpdate, VisualizationComplete:
			ok = true
		}
	}
	if !ok {
		if s.count == 0 {
			return fmt.Errorf("%w: %s cannot start a run", ErrOutOfOrder, kind)
		}
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, kind, s.last)
	}
	return nil
}

// Advance records kind if Allow accepts it.
func (s *Sequencer) Advance(kind MessageType) error {
	if err := s.Allow(kind); err != nil {
		return err
	}
	switch kind {
	case TopologyInit:
		s.phase = phaseTopology
	case InputImageData:
		s.phase = phaseLayers
	case VisualizationComplete:
		s.phase = phaseDone
	}
	s.last = kind
	s.count++
	return nil
}

// Complete reports whether visualization_complete has been seen.
func (s *Sequencer) Complete() bool { return s.phase == phaseDone }
