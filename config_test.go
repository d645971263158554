package tcpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	opts, err := ParseConfig(" chunk_size=4MiB; vm_explicit_commit=1;hugepage=1;huge=skiplist;align=4;fastbin_max_size=512;debug=true; ")
	require.NoError(t, err)
	require.Len(t, opts, 7)

	p, err := New(opts...)
	require.NoError(t, err)
	assert.Equal(t, uint64(4<<20), p.ChunkSize())
	assert.Equal(t, uint64(4), p.AlignSize())
	assert.Equal(t, uint64(512), p.FastbinMaxSize())
	assert.True(t, p.opts.explicitCommit)
	assert.Equal(t, HugePageTransparent, p.opts.hugePages)
	assert.Equal(t, HugeSkipList, p.opts.huge)
	assert.NotNil(t, p.live)
}

func TestParseConfigEmpty(t *testing.T) {
	opts, err := ParseConfig("")
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestParseConfigErrors(t *testing.T) {
	for _, s := range []string{
		"chunk_size",
		"chunk_size=lots",
		"hugepage=3",
		"hugepage=x",
		"huge=list",
		"vm_explicit_commit=maybe",
		"debug=2",
		"align=eight",
		"color=blue",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseConfig(s)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseConfigValidatedByNew(t *testing.T) {
	opts, err := ParseConfig("chunk_size=3000")
	require.NoError(t, err)
	_, err = New(opts...)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestHugeStrategyString(t *testing.T) {
	assert.Equal(t, "slot", HugeSingleSlot.String())
	assert.Equal(t, "skiplist", HugeSkipList.String())
	assert.Equal(t, "HugeStrategy(9)", HugeStrategy(9).String())
}
