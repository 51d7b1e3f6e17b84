package compression

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Algorithm identifies a compression algorithm. Its numeric value is also
// the one-byte tag BlockCodec writes ahead of every compressed block, so
// renumbering these constants would break any SSTable file already on
// disk.
type Algorithm int

const (
	// AlgorithmNone indicates no compression
	AlgorithmNone Algorithm = iota
	// AlgorithmSnappy is fast compression with moderate ratio (default for hot data)
	AlgorithmSnappy
	// AlgorithmZstd is balanced compression with good speed and ratio (recommended)
	AlgorithmZstd
	// AlgorithmGzip is standard compression with good ratio
	AlgorithmGzip
	// AlgorithmZlib is similar to gzip
	AlgorithmZlib
)

// String returns the string representation of the algorithm
func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmZlib:
		return "zlib"
	default:
		return "unknown"
	}
}

// Config holds compression configuration
type Config struct {
	Algorithm Algorithm
	Level     int // Compression level (meaning varies by algorithm)
}

// DefaultConfig returns the default compression configuration (Zstd with default level)
func DefaultConfig() *Config {
	return &Config{
		Algorithm: AlgorithmZstd,
		Level:     3, // Default Zstd level (balanced)
	}
}

// SnappyConfig returns configuration for Snappy (fast compression)
func SnappyConfig() *Config {
	return &Config{
		Algorithm: AlgorithmSnappy,
		Level:     0, // Snappy doesn't use levels
	}
}

// GzipConfig returns configuration for Gzip
func GzipConfig(level int) *Config {
	if level < gzip.NoCompression || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Config{
		Algorithm: AlgorithmGzip,
		Level:     level,
	}
}

// ZstdConfig returns configuration for Zstd
func ZstdConfig(level int) *Config {
	// Zstd levels typically range from 1 (fastest) to 19 (best compression)
	if level < 1 || level > 19 {
		level = 3 // Default level
	}
	return &Config{
		Algorithm: AlgorithmZstd,
		Level:     level,
	}
}

// Compressor handles data compression
type Compressor struct {
	config     *Config
	zstdEnc    *zstd.Encoder
	zstdDec    *zstd.Decoder
	bufferPool *bytes.Buffer
}

// NewCompressor creates a new compressor with the given configuration
func NewCompressor(config *Config) (*Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Compressor{
		config:     config,
		bufferPool: new(bytes.Buffer),
	}

	// Pre-create zstd encoder/decoder if using zstd
	if config.Algorithm == AlgorithmZstd {
		var err error
		encLevel := zstd.EncoderLevelFromZstd(config.Level)
		c.zstdEnc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}

		c.zstdDec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	return c, nil
}

// Compress compresses the input data
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, nil

	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil

	case AlgorithmZstd:
		return c.zstdEnc.EncodeAll(data, nil), nil

	case AlgorithmGzip:
		c.bufferPool.Reset()
		writer, err := gzip.NewWriterLevel(c.bufferPool, c.config.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write gzip data: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
		return c.bufferPool.Bytes(), nil

	case AlgorithmZlib:
		c.bufferPool.Reset()
		writer, err := zlib.NewWriterLevel(c.bufferPool, c.config.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib writer: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write zlib data: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to close zlib writer: %w", err)
		}
		return c.bufferPool.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %v", c.config.Algorithm)
	}
}

// Decompress decompresses the input data
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, nil

	case AlgorithmSnappy:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snappy: %w", err)
		}
		return decoded, nil

	case AlgorithmZstd:
		decoded, err := c.zstdDec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decode zstd: %w", err)
		}
		return decoded, nil

	case AlgorithmGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer reader.Close()

		c.bufferPool.Reset()
		if _, err := io.Copy(c.bufferPool, reader); err != nil {
			return nil, fmt.Errorf("failed to read gzip data: %w", err)
		}
		return c.bufferPool.Bytes(), nil

	case AlgorithmZlib:
		reader, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		defer reader.Close()

		c.bufferPool.Reset()
		if _, err := io.Copy(c.bufferPool, reader); err != nil {
			return nil, fmt.Errorf("failed to read zlib data: %w", err)
		}
		return c.bufferPool.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %v", c.config.Algorithm)
	}
}

// Close closes the compressor and releases resources
func (c *Compressor) Close() error {
	if c.zstdEnc != nil {
		c.zstdEnc.Close()
	}
	if c.zstdDec != nil {
		c.zstdDec.Close()
	}
	return nil
}

// CompressionRatio calculates the compression ratio
func CompressionRatio(originalSize, compressedSize int) float64 {
	if originalSize == 0 {
		return 0
	}
	return float64(compressedSize) / float64(originalSize)
}

// SpaceSavings calculates the space savings percentage
func SpaceSavings(originalSize, compressedSize int) float64 {
	if originalSize == 0 {
		return 0
	}
	return (1.0 - CompressionRatio(originalSize, compressedSize)) * 100
}

// blockCodecHeaderSize is the size, in bytes, of the frame BlockCodec
// wraps around a compressed block: a one-byte algorithm tag followed by
// a u32 uncompressed length. This mirrors pkg/lsm/block.go's own
// entry-header framing (explicit little-endian length fields ahead of a
// payload) rather than leaning on encoder/decoder state shared out of
// band, so a block compressed under one algorithm stays readable even
// after an engine is reopened with BlockCompression configured
// differently.
const blockCodecHeaderSize = 5

// BlockCodec adapts a Compressor to the SSTable block boundary.
// SSTable.Finalize calls EncodeBlock once per flushed Block's raw data
// buffer; OpenSSTable/ParseSSTableData call DecodeBlock on the bytes read
// back from disk. Unlike a bare Compressor, a BlockCodec can always
// decode a payload regardless of which algorithm produced it, since the
// algorithm tag travels with the data instead of living only in the
// codec's own Config.
type BlockCodec struct {
	algorithm Algorithm
	encoder   *Compressor

	mu       sync.Mutex
	decoders map[Algorithm]*Compressor
}

// NewBlockCodec creates a BlockCodec that encodes with config's algorithm
// and level. A nil config falls back to DefaultConfig, matching
// NewCompressor.
func NewBlockCodec(config *Config) (*BlockCodec, error) {
	if config == nil {
		config = DefaultConfig()
	}

	encoder, err := NewCompressor(config)
	if err != nil {
		return nil, fmt.Errorf("new block codec: %w", err)
	}

	return &BlockCodec{
		algorithm: config.Algorithm,
		encoder:   encoder,
		decoders:  map[Algorithm]*Compressor{config.Algorithm: encoder},
	}, nil
}

// EncodeBlock compresses data with the codec's configured algorithm and
// prefixes the result with a frame header recording that algorithm and
// data's uncompressed length, so DecodeBlock can round-trip it without
// any other state.
func (bc *BlockCodec) EncodeBlock(data []byte) ([]byte, error) {
	compressed, err := bc.encoder.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}

	out := make([]byte, blockCodecHeaderSize+len(compressed))
	out[0] = byte(bc.algorithm)
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(data)))
	copy(out[blockCodecHeaderSize:], compressed)
	return out, nil
}

// DecodeBlock reads payload's frame header to learn which algorithm
// produced it, decompresses with a matching decoder (creating and
// caching one on first use if payload was written under an algorithm
// this codec wasn't configured with), and verifies the result's length
// against the header before returning it.
func (bc *BlockCodec) DecodeBlock(payload []byte) ([]byte, error) {
	if len(payload) < blockCodecHeaderSize {
		return nil, fmt.Errorf("decode block: payload of %d bytes shorter than the %d-byte frame header", len(payload), blockCodecHeaderSize)
	}

	algo := Algorithm(payload[0])
	wantLen := binary.LittleEndian.Uint32(payload[1:5])
	body := payload[blockCodecHeaderSize:]

	decoder, err := bc.decoderFor(algo)
	if err != nil {
		return nil, err
	}

	data, err := decoder.Decompress(body)
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	if uint32(len(data)) != wantLen {
		return nil, fmt.Errorf("decode block: frame header declares %d uncompressed bytes, got %d", wantLen, len(data))
	}
	return data, nil
}

// decoderFor returns the codec's cached decompressor for algo, lazily
// constructing one if no block with that tag has been decoded yet.
func (bc *BlockCodec) decoderFor(algo Algorithm) (*Compressor, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if decoder, ok := bc.decoders[algo]; ok {
		return decoder, nil
	}

	decoder, err := NewCompressor(&Config{Algorithm: algo})
	if err != nil {
		return nil, fmt.Errorf("decode block: build decoder for algorithm %s: %w", algo, err)
	}
	bc.decoders[algo] = decoder
	return decoder, nil
}

// Close releases every decoder the codec has created, including the
// primary encoder.
func (bc *BlockCodec) Close() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for _, decoder := range bc.decoders {
		decoder.Close()
	}
	return nil
}
