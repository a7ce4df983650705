package external

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	maskDecoders = sync.Pool{
		New: func() any {
			d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
			}
			return d
		},
	}
	maskEncoders = sync.Pool{
		New: func() any {
			e, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
			if err != nil {
				panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
			}
			return e
		},
	}
)

// EncodeMask compresses raw class labels for transport.
func EncodeMask(cells []byte) []byte {
	enc := maskEncoders.Get().(*zstd.Encoder)
	defer maskEncoders.Put(enc)
	return enc.EncodeAll(cells, make([]byte, 0, len(cells)/4))
}

// DecodeMask decompresses a tile mask and checks it holds exactly
// Width*Height labels.
func DecodeMask(t *SegmentationTile) ([]byte, error) {
	if t.Width <= 0 || t.Height <= 0 {
		return nil, fmt.Errorf("invalid tile dimensions %dx%d", t.Width, t.Height)
	}
	dec := maskDecoders.Get().(*zstd.Decoder)
	defer maskDecoders.Put(dec)

	want := t.Width * t.Height
	cells, err := dec.DecodeAll(t.Mask, make([]byte, 0, want))
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	if len(cells) != want {
		return nil, fmt.Errorf("mask has %d cells, want %d", len(cells), want)
	}
	return cells, nil
}
