// internal/storage/compress.go
package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// patch payloads below this stay uncompressed
const compressMinSize = 256

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// compressor pools zstd encoders/decoders for delta-log payloads
type compressor struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newCompressor() *compressor {
	return &compressor{
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(zstd.SpeedDefault),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil,
					zstd.WithDecoderConcurrency(1),
				)
				return dec
			},
		},
	}
}

func (c *compressor) compress(data []byte) []byte {
	if len(data) < compressMinSize {
		return data
	}
	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)
	return enc.EncodeAll(data, nil)
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	// payloads below the size floor were stored raw
	if len(data) < 4 || !bytes.Equal(data[:4], zstdMagic) {
		return data, nil
	}
	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	return out, nil
}
