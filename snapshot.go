package tcpool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/tcpool/resource"
)

// Codec selects how a snapshot payload is compressed.
type Codec uint8

const (
	// CodecZstd compresses with zstd (default).
	CodecZstd Codec = 0
	// CodecLZ4 compresses with the LZ4 frame format.
	CodecLZ4 Codec = 1
	// CodecNone stores the arena uncompressed.
	CodecNone Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	case CodecNone:
		return "none"
	default:
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
}

// Snapshot layout:
//
//	[0:4]   magic "TCPL"
//	[4]     version
//	[5]     align size
//	[6]     codec
//	[7]     reserved
//	[8:16]  committed length, little endian
//	[16:20] CRC32 (IEEE) of the uncompressed payload
//	[20:24] CRC32 (IEEE) of bytes [0:20]
//	[24:]   payload
const (
	snapshotMagic      = "TCPL"
	snapshotVersion    = 1
	snapshotHeaderSize = 24
	snapshotBlock      = 1 << 20
)

var crcTable = crc32.MakeTable(crc32.IEEE)

type snapshotHeader struct {
	align     uint8
	codec     Codec
	committed uint64
	checksum  uint32
}

func (h *snapshotHeader) marshal() []byte {
	b := make([]byte, snapshotHeaderSize)
	copy(b, snapshotMagic)
	b[4] = snapshotVersion
	b[5] = h.align
	b[6] = byte(h.codec)
	binary.LittleEndian.PutUint64(b[8:], h.committed)
	binary.LittleEndian.PutUint32(b[16:], h.checksum)
	binary.LittleEndian.PutUint32(b[20:], crc32.Checksum(b[:20], crcTable))
	return b
}

func (h *snapshotHeader) unmarshal(b []byte) error {
	if string(b[:4]) != snapshotMagic {
		return fmt.Errorf("%w: bad magic %q", ErrInvalidSnapshot, b[:4])
	}
	if sum := crc32.Checksum(b[:20], crcTable); sum != binary.LittleEndian.Uint32(b[20:]) {
		return fmt.Errorf("%w: header checksum mismatch", ErrInvalidSnapshot)
	}
	if b[4] != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, b[4])
	}
	h.align = b[5]
	h.codec = Codec(b[6])
	h.committed = binary.LittleEndian.Uint64(b[8:])
	h.checksum = binary.LittleEndian.Uint32(b[16:])
	if h.align != 4 && h.align != 8 {
		return fmt.Errorf("%w: align size %d", ErrInvalidSnapshot, h.align)
	}
	if h.codec > CodecNone {
		return fmt.Errorf("%w: %s", ErrInvalidSnapshot, h.codec)
	}
	if h.committed > MaxCapacity || h.committed%uint64(h.align) != 0 {
		return fmt.Errorf("%w: committed length %d", ErrInvalidSnapshot, h.committed)
	}
	return nil
}

// WriteSnapshot writes the committed arena prefix to w. Free lists and hot
// areas are not recorded; a pool loaded from the snapshot treats the whole
// image as allocated. No cache may be in use while it runs.
func (p *Pool) WriteSnapshot(ctx context.Context, w io.Writer, codec Codec) (err error) {
	if p.closed.Load() {
		return ErrClosed
	}
	if codec > CodecNone {
		return fmt.Errorf("%w: snapshot codec %s", ErrInvalidOption, codec)
	}
	data := p.Bytes()
	h := snapshotHeader{
		align:     uint8(p.align), //nolint:gosec // 4 or 8
		codec:     codec,
		committed: uint64(len(data)),
		checksum:  crc32.Checksum(data, crcTable),
	}
	defer func() {
		p.logger.LogSnapshot(ctx, "write", h.committed, codec, err)
	}()

	if p.opts.controller != nil {
		w = resource.NewRateLimitedWriter(ctx, w, p.opts.controller)
	}
	if _, err = w.Write(h.marshal()); err != nil {
		return fmt.Errorf("snapshot header: %w", err)
	}

	var enc io.WriteCloser
	switch codec {
	case CodecZstd:
		enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
	case CodecLZ4:
		enc = lz4.NewWriter(w)
	default:
		enc = nopWriteCloser{w}
	}

	for off := 0; off < len(data); off += snapshotBlock {
		if err = ctx.Err(); err != nil {
			_ = enc.Close()
			return err
		}
		end := min(off+snapshotBlock, len(data))
		if _, err = enc.Write(data[off:end]); err != nil {
			_ = enc.Close()
			return fmt.Errorf("snapshot payload: %w", err)
		}
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("snapshot payload: %w", err)
	}
	return nil
}

// LoadSnapshot builds a pool whose committed prefix is the snapshot image.
// A nonzero capacity sizes the arena and bounds the image; with 0 the arena
// is sized to fit the image. The alignment is taken from the snapshot; opts
// may set everything else.
//
// With WithDebug(true) blocks inside the image are not tracked as live;
// freeing one is accepted once.
func LoadSnapshot(ctx context.Context, r io.Reader, capacity uint64, opts ...Option) (*Pool, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.controller != nil {
		r = resource.NewRateLimitedReader(ctx, r, o.controller)
	}

	buf := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidSnapshot, err)
	}
	var h snapshotHeader
	if err := h.unmarshal(buf); err != nil {
		return nil, err
	}
	if capacity == 0 {
		capacity = h.committed
	} else if h.committed > capacity {
		return nil, fmt.Errorf("%w: image of %d bytes exceeds capacity %d", ErrInvalidSnapshot, h.committed, capacity)
	}

	p, err := New(append(opts, WithAlignSize(int(h.align)))...)
	if err != nil {
		return nil, err
	}
	if err := p.load(ctx, r, &h, capacity); err != nil {
		_ = p.Close()
		p.logger.LogSnapshot(ctx, "load", h.committed, h.codec, err)
		return nil, err
	}
	p.logger.LogSnapshot(ctx, "load", h.committed, h.codec, nil)
	return p, nil
}

func (p *Pool) load(ctx context.Context, r io.Reader, h *snapshotHeader, capacity uint64) error {
	if err := p.Reserve(max(capacity, ArenaUnit)); err != nil {
		return err
	}
	if h.committed > p.capacity {
		return fmt.Errorf("%w: image of %d bytes exceeds capacity", ErrInvalidSnapshot, h.committed)
	}
	if h.committed == 0 {
		return nil
	}
	p.commit(0, h.committed)

	var dec io.Reader
	switch h.codec {
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		dec = zr
	case CodecLZ4:
		dec = lz4.NewReader(r)
	default:
		dec = r
	}

	data := p.mem[:h.committed]
	for off := 0; off < len(data); off += snapshotBlock {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+snapshotBlock, len(data))
		if _, err := io.ReadFull(dec, data[off:end]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: truncated payload", ErrInvalidSnapshot)
			}
			return fmt.Errorf("%w: payload: %w", ErrInvalidSnapshot, err)
		}
	}
	if sum := crc32.Checksum(data, crcTable); sum != h.checksum {
		return fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)", ErrInvalidSnapshot, sum, h.checksum)
	}
	p.committed.Store(h.committed)
	if p.live != nil {
		p.live.setImage(h.committed)
	}
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
