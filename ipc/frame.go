// Package ipc implements the framed message channel between the parent-side
// proxy and the worker bootstrap.
//
// Frames are msgpack payloads preceded by a 4-byte big-endian length prefix.
// The channel is any ordered, reliable byte stream; in practice the worker's
// stdin carries request frames and an inherited pipe carries reply frames,
// leaving stdout and stderr free for raw diagnostic text.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tetherproc/tether/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the channel cannot be resynchronized after this
// error. Partial and oversized frames corrupt framing; decode errors do not.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// UnknownKindError reports a structurally valid message whose kind is not
// recognized. Receivers must treat it as recoverable: log and continue.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown message kind %q", e.Kind)
}

// IsUnknownKind returns true if the error is an UnknownKindError.
func IsUnknownKind(err error) bool {
	var unknownErr *UnknownKindError
	return errors.As(err, &unknownErr)
}

// FrameDecoder decodes length-prefixed frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])

	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// FrameEncoder encodes messages as length-prefixed frames onto a stream.
//
// Writes are serialized by an internal mutex: the stream is shared by
// concurrent senders, and an interleaved prefix and payload from two frames
// would corrupt it for good.
type FrameEncoder struct {
	mu     sync.Mutex
	writer io.Writer
	codec  Codec
}

// NewFrameEncoder creates a frame encoder using the default codec.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return NewFrameEncoderWithCodec(w, DefaultCodec())
}

// NewFrameEncoderWithCodec creates a frame encoder with an injected codec.
func NewFrameEncoderWithCodec(w io.Writer, codec Codec) *FrameEncoder {
	return &FrameEncoder{writer: w, codec: codec}
}

// WriteMessage encodes msg and writes it as a single frame.
func (e *FrameEncoder) WriteMessage(msg any) error {
	payload, err := e.codec.Marshal(msg)
	if err != nil {
		return &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to encode message",
			Err:  err,
		}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.writer.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := e.writer.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// kindProbe peeks at the kind field without a full decode.
type kindProbe struct {
	Kind string `msgpack:"kind"`
}

// DecodeRequest decodes a parent-to-worker payload into one of
// *types.InitMessage, *types.CallMessage, or *types.DisposeMessage.
// Unrecognized kinds return *UnknownKindError.
func DecodeRequest(payload []byte, codec Codec) (any, error) {
	kind, err := probeKind(payload, codec)
	if err != nil {
		return nil, err
	}

	switch types.Kind(kind) {
	case types.KindInit:
		msg := new(types.InitMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	case types.KindCall:
		msg := new(types.CallMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	case types.KindDispose:
		msg := new(types.DisposeMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

// DecodeReply decodes a worker-to-parent payload into one of
// *types.InitializedMessage, *types.ResultMessage, *types.RejectionMessage,
// or *types.DisposeCompletedMessage.
// Unrecognized kinds return *UnknownKindError.
func DecodeReply(payload []byte, codec Codec) (any, error) {
	kind, err := probeKind(payload, codec)
	if err != nil {
		return nil, err
	}

	switch types.Kind(kind) {
	case types.KindInitialized:
		msg := new(types.InitializedMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	case types.KindResult:
		msg := new(types.ResultMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	case types.KindRejection:
		msg := new(types.RejectionMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	case types.KindDisposeCompleted:
		msg := new(types.DisposeCompletedMessage)
		return msg, unmarshalMessage(payload, msg, codec)
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

func probeKind(payload []byte, codec Codec) (string, error) {
	var probe kindProbe
	if err := codec.Unmarshal(payload, &probe); err != nil {
		return "", &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode message kind",
			Err:  err,
		}
	}
	return probe.Kind, nil
}

func unmarshalMessage(payload []byte, msg any, codec Codec) error {
	if err := codec.Unmarshal(payload, msg); err != nil {
		return &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode message",
			Err:  err,
		}
	}
	return nil
}
