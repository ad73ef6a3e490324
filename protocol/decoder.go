package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Decoder reads messages on the renderer side and checks that they arrive
// in run order.
type Decoder struct {
	r   *bufio.Reader
	seq Sequencer
}

// NewDecoder creates a decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next message. A stream that ends between frames yields
// io.EOF.
func (d *Decoder) Next() (*Message, error) {
	body, err := ReadFrame(d.r)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err := d.seq.Advance(msg.Type); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Complete reports whether visualization_complete has been read.
func (d *Decoder) Complete() bool { return d.seq.Complete() }
