package audioio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the largest Opus frame.
const maxOpusFrame = 5760

// OpusDecoder turns Opus packets from the browser into PCM chunks.
// Not safe for concurrent use.
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
	buf        []int16
}

// NewOpusDecoder creates a decoder. Browsers send 48kHz mono.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audioio: create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		buf:        make([]int16, maxOpusFrame*channels),
	}, nil
}

// Decode decodes one packet.
func (d *OpusDecoder) Decode(packet []byte) (Chunk, error) {
	n, err := d.dec.Decode(packet, d.buf)
	if err != nil {
		return Chunk{}, fmt.Errorf("audioio: opus decode: %w", err)
	}
	samples := make([]int16, n*d.channels)
	copy(samples, d.buf[:n*d.channels])
	return Chunk{Samples: samples, SampleRate: d.sampleRate, Channels: d.channels}, nil
}
