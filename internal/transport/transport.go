package transport

import (
	"io"

	"github.com/kstaniek/go-lin-monitor/internal/cnl"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
)

// FrameDecoder decodes a single exported frame from a stream.
type FrameDecoder interface {
	Decode(r io.Reader) (lin.Frame, error)
}

// MultiFrameDecoder optionally drains multiple frames from a stream.
type MultiFrameDecoder interface {
	DecodeN(r io.Reader, max int, onFrame func(lin.Frame)) (int, error)
}

// FrameBatchEncoder can encode batches efficiently (either to bytes or directly to writer).
type FrameBatchEncoder interface {
	Encode([]lin.Frame) []byte
	EncodeTo(w io.Writer, frames []lin.Frame) (int, error)
}

// FrameCodec is what the export server needs from a wire codec.
type FrameCodec interface {
	FrameDecoder
	FrameBatchEncoder
}

// Compile-time assertions that *cnl.Codec satisfies the optional capabilities.
var (
	_ FrameCodec        = (*cnl.Codec)(nil)
	_ MultiFrameDecoder = (*cnl.Codec)(nil)
)
