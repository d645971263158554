package tcpool

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tcpool/resource"
)

func snapshotSource(t *testing.T, opts ...Option) (*Pool, []uint64) {
	t.Helper()
	p := newTestPool(t, 4*ArenaUnit, opts...)
	c := p.Acquire()
	defer p.Release(c)

	var offsets []uint64
	for i := range 100 {
		pos := c.Alloc(uint64(16 + i*8))
		require.NotEqual(t, Nil, pos)
		buf := p.Slice(pos, 16)
		for j := range buf {
			buf[j] = byte(i + j)
		}
		offsets = append(offsets, pos)
	}
	return p, offsets
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecZstd, CodecLZ4, CodecNone} {
		t.Run(codec.String(), func(t *testing.T) {
			ctx := context.Background()
			src, offsets := snapshotSource(t, WithAlignSize(4))

			var buf bytes.Buffer
			require.NoError(t, src.WriteSnapshot(ctx, &buf, codec))
			if codec != CodecNone {
				assert.Less(t, buf.Len(), int(src.Size()))
			}

			dst, err := LoadSnapshot(ctx, &buf, 0, WithHeapBacking(true), WithChunkSize(64<<10))
			require.NoError(t, err)
			defer dst.Close()

			assert.Equal(t, uint64(4), dst.AlignSize())
			assert.Equal(t, src.Size(), dst.Size())
			assert.Equal(t, src.Bytes(), dst.Bytes())
			for i, pos := range offsets {
				assert.Equal(t, byte(i), dst.ByteAt(pos))
			}

			// The image counts as allocated.
			pos := dst.Alloc(8)
			assert.GreaterOrEqual(t, pos, src.Size())
		})
	}
}

func TestSnapshotCapacity(t *testing.T) {
	ctx := context.Background()
	src, _ := snapshotSource(t)

	var buf bytes.Buffer
	require.NoError(t, src.WriteSnapshot(ctx, &buf, CodecLZ4))

	dst, err := LoadSnapshot(ctx, &buf, 8*ArenaUnit, WithHeapBacking(true))
	require.NoError(t, err)
	defer dst.Close()
	assert.Equal(t, uint64(8*ArenaUnit), dst.Capacity())
}

func TestSnapshotEmpty(t *testing.T) {
	ctx := context.Background()
	src := newTestPool(t, ArenaUnit)

	var buf bytes.Buffer
	require.NoError(t, src.WriteSnapshot(ctx, &buf, CodecZstd))

	dst, err := LoadSnapshot(ctx, &buf, ArenaUnit, WithHeapBacking(true))
	require.NoError(t, err)
	defer dst.Close()
	assert.Zero(t, dst.Size())
	assert.NotEqual(t, Nil, dst.Alloc(8))
}

func TestSnapshotCorruption(t *testing.T) {
	ctx := context.Background()
	src, _ := snapshotSource(t)

	var buf bytes.Buffer
	require.NoError(t, src.WriteSnapshot(ctx, &buf, CodecNone))
	image := buf.Bytes()

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"version", func(b []byte) []byte { b[4] = 9; return b }},
		{"align", func(b []byte) []byte { b[5] = 16; return b }},
		{"codec", func(b []byte) []byte { b[6] = 7; return b }},
		{"payload", func(b []byte) []byte { b[snapshotHeaderSize+3] ^= 0xFF; return b }},
		{"length", func(b []byte) []byte { binary.LittleEndian.PutUint64(b[8:], 1<<50); return b }},
		{"header checksum", func(b []byte) []byte { b[21] ^= 0xFF; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-10] }},
		{"short header", func(b []byte) []byte { return b[:8] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(bytes.Clone(image))
			_, err := LoadSnapshot(ctx, bytes.NewReader(b), 0, WithHeapBacking(true))
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

// withCommitted rewrites the committed length of a snapshot image with a
// valid header checksum.
func withCommitted(t *testing.T, image []byte, committed uint64) []byte {
	t.Helper()
	var h snapshotHeader
	require.NoError(t, h.unmarshal(image[:snapshotHeaderSize]))
	h.committed = committed
	b := bytes.Clone(image)
	copy(b, h.marshal())
	return b
}

func TestSnapshotLengthBounds(t *testing.T) {
	ctx := context.Background()
	src, _ := snapshotSource(t)

	var buf bytes.Buffer
	require.NoError(t, src.WriteSnapshot(ctx, &buf, CodecNone))
	image := buf.Bytes()

	t.Run("exceeds capacity argument", func(t *testing.T) {
		b := withCommitted(t, image, 4*ArenaUnit)
		_, err := LoadSnapshot(ctx, bytes.NewReader(b), ArenaUnit, WithHeapBacking(true))
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("exceeds max capacity", func(t *testing.T) {
		b := withCommitted(t, image, MaxCapacity+ArenaUnit)
		_, err := LoadSnapshot(ctx, bytes.NewReader(b), 0, WithHeapBacking(true))
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("unaligned", func(t *testing.T) {
		b := withCommitted(t, image, src.Size()-4)
		_, err := LoadSnapshot(ctx, bytes.NewReader(b), 0, WithHeapBacking(true))
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("longer than payload", func(t *testing.T) {
		b := withCommitted(t, image, src.Size()+ArenaUnit)
		_, err := LoadSnapshot(ctx, bytes.NewReader(b), 0, WithHeapBacking(true))
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})
}

func TestSnapshotDebug(t *testing.T) {
	ctx := context.Background()
	src, offsets := snapshotSource(t)

	var buf bytes.Buffer
	require.NoError(t, src.WriteSnapshot(ctx, &buf, CodecLZ4))

	dst, err := LoadSnapshot(ctx, &buf, 0, WithHeapBacking(true), WithDebug(true))
	require.NoError(t, err)
	defer dst.Close()

	// Blocks of the image can be freed once.
	dst.Free(offsets[0], 16)
	ce := contractPanic(t, func() { dst.Free(offsets[0], 16) })
	assert.Equal(t, "block is not live (double free?)", ce.Reason)

	// Reallocated image bytes are tracked like any other block.
	pos := dst.Alloc(16)
	require.Equal(t, offsets[0], pos)
	dst.Free(pos, 16)

	// Resizing an image block starts tracking it.
	res := dst.Alloc3(offsets[1], 24, 8)
	require.Equal(t, offsets[1], res)
	ce = contractPanic(t, func() { dst.Free(res, 24) })
	assert.Equal(t, "length exceeds the live block", ce.Reason)
	dst.Free(res, 8)

	// Blocks above the image are checked as usual.
	fresh := dst.Alloc(32)
	assert.GreaterOrEqual(t, fresh, src.Size())
	ce = contractPanic(t, func() { dst.Free(fresh+32, 32) })
	assert.NotEmpty(t, ce.Reason)
}

func TestSnapshotErrors(t *testing.T) {
	ctx := context.Background()
	src, _ := snapshotSource(t)

	assert.ErrorIs(t, src.WriteSnapshot(ctx, &bytes.Buffer{}, Codec(5)), ErrInvalidOption)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, src.WriteSnapshot(canceled, &bytes.Buffer{}, CodecNone), context.Canceled)

	closed := newTestPool(t, ArenaUnit)
	require.NoError(t, closed.Close())
	assert.ErrorIs(t, closed.WriteSnapshot(ctx, &bytes.Buffer{}, CodecNone), ErrClosed)
}

func TestSnapshotRateLimited(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{BytesPerSec: 64 << 20})
	src, _ := snapshotSource(t, WithResourceController(rc))

	var buf bytes.Buffer
	require.NoError(t, src.WriteSnapshot(ctx, &buf, CodecZstd))

	dst, err := LoadSnapshot(ctx, &buf, 0, WithHeapBacking(true), WithResourceController(rc))
	require.NoError(t, err)
	defer dst.Close()
	assert.Equal(t, src.Bytes(), dst.Bytes())
}

func TestCodecString(t *testing.T) {
	assert.Equal(t, "zstd", CodecZstd.String())
	assert.Equal(t, "lz4", CodecLZ4.String())
	assert.Equal(t, "none", CodecNone.String())
	assert.Equal(t, "Codec(9)", Codec(9).String())
}
