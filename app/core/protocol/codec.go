package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxLineBytes bounds a single wire message so a misbehaving peer cannot
// force unbounded buffering.
const maxLineBytes = 1 << 20

// ErrMalformed marks a message that failed to decode, as opposed to a
// closed connection or read error. Callers should reply with an error
// envelope and keep the connection open, rather than hang up.
var ErrMalformed = errors.New("protocol: malformed message")

// Codec frames Envelopes as newline-delimited JSON over a byte stream.
type Codec struct {
	r *bufio.Reader
	w io.Writer
}

// NewCodec wraps a connection for envelope-at-a-time reads and writes.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReaderSize(rw, 4096), w: rw}
}

// ReadEnvelope reads and decodes the next LF-terminated JSON object.
func (c *Codec) ReadEnvelope() (Envelope, error) {
	var line []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineBytes {
			return Envelope{}, fmt.Errorf("%w: message exceeds %d bytes", ErrMalformed, maxLineBytes)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && len(line) == 0 {
			return Envelope{}, err
		}
		break
	}
	var env Envelope
	if unmarshalErr := json.Unmarshal(line, &env); unmarshalErr != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, unmarshalErr)
	}
	return env, nil
}

// WriteEnvelope encodes v as the envelope's data field under the given type
// and writes it followed by a single LF.
func WriteEnvelope(w io.Writer, msgType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Data: data}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("protocol: encode envelope: %w", err)
	}
	line = append(line, '\n')
	_, err = w.Write(line)
	return err
}

// Write encodes and sends an envelope through the codec.
func (c *Codec) Write(msgType string, v any) error {
	return WriteEnvelope(c.w, msgType, v)
}

// WriteError sends the one-shot {"error": "..."} reply for an unrecognized
// message type.
func (c *Codec) WriteError(message string) error {
	line, err := json.Marshal(Envelope{Error: message})
	if err != nil {
		return fmt.Errorf("protocol: encode error message: %w", err)
	}
	line = append(line, '\n')
	_, err = c.w.Write(line)
	return err
}

// Decode unmarshals an envelope's data field into v.
func Decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}
