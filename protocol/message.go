// Package protocol is the wire contract between the director and a renderer:
// length-prefixed JSON frames carrying a {type, data} envelope, sent in a
// fixed order over a single connection.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tsawler/go-netviz/trace"
)

// MessageType is the type field of the envelope.
type MessageType string

const (
	TopologyInit          MessageType = "topology_init"
	InputImageData        MessageType = "input_image_data"
	ExplanationUpdate     MessageType = "explanation_update"
	ConvStep              MessageType = "conv_step"
	PoolStep              MessageType = "pool_step"
	LayerUpdate           MessageType = "layer_update"
	VisualizationComplete MessageType = "visualization_complete"
)

// MessageTypes lists every kind in the order they first appear in a run.
var MessageTypes = []MessageType{
	TopologyInit,
	InputImageData,
	ExplanationUpdate,
	ConvStep,
	PoolStep,
	LayerUpdate,
	VisualizationComplete,
}

// Valid reports whether t is a known kind.
func (t MessageType) Valid() bool {
	for _, k := range MessageTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Message is the envelope of every frame. Data is absent for
// visualization_complete.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", m.Type, err)
	}
	return nil
}

// Step decodes a conv_step, pool_step or layer_update payload.
func (m *Message) Step() (trace.Step, error) {
	switch m.Type {
	case ConvStep:
		var s trace.ConvStep
		err := m.Decode(&s)
		return s, err
	case PoolStep:
		var s trace.PoolStep
		err := m.Decode(&s)
		return s, err
	case LayerUpdate:
		var s trace.ActivationUpdate
		err := m.Decode(&s)
		return s, err
	default:
		return nil, fmt.Errorf("%s is not a step message", m.Type)
	}
}

// LayerDescriptor is one entry of topology_init.
type LayerDescriptor struct {
	Name        string `json:"name" jsonschema_description:"Decimal layer index"`
	Type        string `json:"type" jsonschema:"enum=Conv2d,enum=ReLU,enum=MaxPool2d"`
	OutputShape []int  `json:"output_shape" jsonschema:"minItems=4,maxItems=4"`
	Details     string `json:"details"`
}

// InputImage carries the raw sample: channel-interleaved, row-major bytes.
type InputImage struct {
	Pixels []int `json:"pixels" jsonschema_description:"0-255 values, RGB interleaved, row-major"`
	Width  int   `json:"width"`
	Height int   `json:"height"`
}

// Explanation is the caption shown before a layer streams.
type Explanation struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// StepType returns the message kind a step travels as.
func StepType(s trace.Step) (MessageType, error) {
	switch s.(type) {
	case trace.ConvStep, *trace.ConvStep:
		return ConvStep, nil
	case trace.PoolStep, *trace.PoolStep:
		return PoolStep, nil
	case trace.ActivationUpdate, *trace.ActivationUpdate:
		return LayerUpdate, nil
	default:
		return "", fmt.Errorf("unknown step %T", s)
	}
}
