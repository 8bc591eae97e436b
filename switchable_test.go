package filecache_test

import (
	"context"
	"testing"

	"github.com/hupe1980/filecache"
	"github.com/hupe1980/filecache/localdir"
	"github.com/hupe1980/filecache/remotestore"
	"github.com/hupe1980/filecache/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchFixture struct {
	cache  *filecache.FileCache
	local  *localdir.Directory
	remote *remotestore.MemoryDirectory
	tm     *transfer.Manager
	data   []byte
}

// newSwitchFixture lays out one segment file on local disk and, in the
// remote store, the same bytes ready to be switched to.
func newSwitchFixture(t *testing.T, fileName string, size int) *switchFixture {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	local, err := localdir.New(t.TempDir())
	require.NoError(t, err)
	w, err := local.CreateOutput(fileName)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	remote := remotestore.NewMemoryDirectory()
	remote.Put(fileName, data)

	cache, err := filecache.New(1<<20, filecache.WithSegments(1))
	require.NoError(t, err)

	tm, err := transfer.NewManager(cache, local, remote, transfer.WithBlockSize(64))
	require.NoError(t, err)

	return &switchFixture{cache: cache, local: local, remote: remote, tm: tm, data: data}
}

func (f *switchFixture) open(t *testing.T, fileName string) (*filecache.SwitchableInput, string) {
	t.Helper()
	switchPath := f.local.Path(fileName) + "_switchable_1"
	s, err := filecache.NewSwitchableInput(filecache.SwitchableConfig{
		Cache:      f.cache,
		FileName:   fileName,
		FullPath:   f.local.Path(fileName),
		SwitchPath: switchPath,
		Local:      f.local,
		Remote:     f.remote,
		Transfer:   f.tm,
	})
	require.NoError(t, err)
	f.cache.Put(switchPath, filecache.NewCachedSwitchableInput(s))
	return s, switchPath
}

func TestSwitchableInputReadsLocalBeforeSwitch(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, _ := f.open(t, "seg1")
	defer s.Close()

	got := make([]byte, 300)
	require.NoError(t, s.ReadBytes(got))
	assert.Equal(t, f.data, got)
	assert.False(t, s.HasSwitched())
	assert.Zero(t, f.remote.RangeReads(), "no remote traffic before switch")

	// The whole-file entry is resident and weighted.
	assert.True(t, f.cache.Contains(f.local.Path("seg1")))
	assert.Equal(t, int64(300), f.cache.Usage())
}

func TestSwitchableInputSwitchPreservesPosition(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, _ := f.open(t, "seg1")
	defer s.Close()

	head := make([]byte, 100)
	require.NoError(t, s.ReadBytes(head))
	require.Equal(t, f.data[:100], head)

	require.NoError(t, s.SwitchToRemote(context.Background()))
	assert.True(t, s.HasSwitched())
	assert.Equal(t, int64(100), s.Pos())

	// Reads continue mid-value with no gap or repeat.
	tail := make([]byte, 200)
	require.NoError(t, s.ReadBytes(tail))
	assert.Equal(t, f.data[100:], tail)
	assert.Positive(t, f.remote.RangeReads())

	// The local whole-file entry is released by the switch.
	assert.False(t, f.cache.Contains(f.local.Path("seg1")))
}

func TestSwitchableInputSwitchIsIdempotent(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, _ := f.open(t, "seg1")
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SwitchToRemote(ctx))
	fetchesAfterFirst := f.tm.FetchCount()

	require.NoError(t, s.SwitchToRemote(ctx))
	require.NoError(t, s.SwitchToRemote(ctx))
	assert.Equal(t, fetchesAfterFirst, f.tm.FetchCount(), "repeated switches must not refetch")
	assert.True(t, s.HasSwitched())
}

func TestSwitchableInputSwitchCascadesToClones(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, switchPath := f.open(t, "seg1")

	require.NoError(t, s.Seek(50))
	cloneIn, err := s.Clone()
	require.NoError(t, err)
	clone := cloneIn.(*filecache.SwitchableInput)
	assert.Equal(t, int64(1), f.cache.RefCount(switchPath))

	sliceIn, err := s.Slice("tail", 200, 100)
	require.NoError(t, err)
	slice := sliceIn.(*filecache.SwitchableInput)
	assert.Equal(t, int64(2), f.cache.RefCount(switchPath))

	require.NoError(t, s.SwitchToRemote(context.Background()))
	assert.True(t, clone.HasSwitched())
	assert.True(t, slice.HasSwitched())

	// Positions survive the cascade.
	assert.Equal(t, int64(50), clone.Pos())
	got := make([]byte, 10)
	require.NoError(t, clone.ReadBytes(got))
	assert.Equal(t, f.data[50:60], got)

	require.NoError(t, slice.ReadBytes(got))
	assert.Equal(t, f.data[200:210], got)

	require.NoError(t, clone.Close())
	require.NoError(t, slice.Close())
	assert.Equal(t, int64(0), f.cache.RefCount(switchPath))
	require.NoError(t, s.Close())
}

func TestSwitchableInputCloseCascades(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, switchPath := f.open(t, "seg1")

	cloneIn, err := s.Clone()
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = cloneIn.ReadByte()
	assert.ErrorIs(t, err, filecache.ErrAlreadyClosed)
	assert.Equal(t, int64(0), f.cache.RefCount(switchPath))

	// Closing again, in any order, stays a no-op.
	require.NoError(t, cloneIn.Close())
	require.NoError(t, s.Close())
}

func TestSwitchableInputCloneAfterSwitch(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, _ := f.open(t, "seg1")
	defer s.Close()

	require.NoError(t, s.SwitchToRemote(context.Background()))
	require.NoError(t, s.Seek(120))

	cloneIn, err := s.Clone()
	require.NoError(t, err)
	got := make([]byte, 30)
	require.NoError(t, cloneIn.ReadBytes(got))
	assert.Equal(t, f.data[120:150], got)
	require.NoError(t, cloneIn.Close())
}

func TestCachedSwitchableInputLifecycle(t *testing.T) {
	f := newSwitchFixture(t, "seg1", 300)
	s, switchPath := f.open(t, "seg1")

	v, ok := f.cache.Get(switchPath)
	require.True(t, ok)
	wrapper := v.(*filecache.CachedSwitchableInput)

	// The wrapper itself carries no weight; residency is accounted by
	// the whole-file entry.
	assert.Equal(t, int64(0), wrapper.Length())

	in, err := wrapper.Input()
	require.NoError(t, err)
	assert.Same(t, s, in)

	require.NoError(t, wrapper.SwitchToRemote(context.Background()))
	assert.True(t, s.HasSwitched())

	require.NoError(t, wrapper.Close())
	require.NoError(t, wrapper.Close())
	_, err = wrapper.Input()
	assert.ErrorIs(t, err, filecache.ErrAlreadyClosed)
	_, err = s.ReadByte()
	assert.ErrorIs(t, err, filecache.ErrAlreadyClosed)
}
