package memory

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalkv/cardinal/internal/core/domain"
)

func TestStore_SetGet(t *testing.T) {
	s := New()

	s.Set(0, "k", domain.String("v"))

	got, ok := s.Get(0, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Str)
	assert.True(t, got.IsString())
}

func TestStore_GetMissing(t *testing.T) {
	s := New()

	_, ok := s.Get(0, "absent")
	assert.False(t, ok)
}

func TestStore_Overwrite(t *testing.T) {
	s := New()

	s.Set(0, "k", domain.String("first"))
	s.Set(0, "k", domain.String("second"))

	got, ok := s.Get(0, "k")
	require.True(t, ok)
	assert.Equal(t, "second", got.Str)
}

func TestStore_DatabasesAreIsolated(t *testing.T) {
	s := New()

	for db := 0; db < NumDatabases; db++ {
		s.Set(db, "shared", domain.String(string(rune('a'+db))))
	}

	for db := 0; db < NumDatabases; db++ {
		got, ok := s.Get(db, "shared")
		require.True(t, ok, "db %d", db)
		assert.Equal(t, string(rune('a'+db)), got.Str, "db %d", db)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	now := time.Now()
	current := now
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = now.Add(d)
	}

	s := New(WithClock(clock))
	s.SetWithTTL(0, "temp", domain.String("v"), 100*time.Millisecond)

	_, ok := s.Get(0, "temp")
	assert.True(t, ok, "entry should be live before its deadline")

	advance(99 * time.Millisecond)
	_, ok = s.Get(0, "temp")
	assert.True(t, ok, "entry should be live just before its deadline")

	advance(100 * time.Millisecond)
	_, ok = s.Get(0, "temp")
	assert.False(t, ok, "entry should expire exactly at its deadline")
}

func TestStore_ZeroTTLAlreadyExpired(t *testing.T) {
	s := New()

	s.SetWithTTL(0, "gone", domain.String("v"), 0)

	_, ok := s.Get(0, "gone")
	assert.False(t, ok)
}

func TestStore_SetClearsTTL(t *testing.T) {
	now := time.Now()
	current := now
	s := New(WithClock(func() time.Time { return current }))

	s.SetWithTTL(0, "k", domain.String("v"), 50*time.Millisecond)
	s.Set(0, "k", domain.String("v2"))

	current = now.Add(time.Hour)
	got, ok := s.Get(0, "k")
	require.True(t, ok, "plain Set should clear the TTL")
	assert.Equal(t, "v2", got.Str)
}

func TestStore_ExpiredEntryEvictedOnRead(t *testing.T) {
	now := time.Now()
	current := now
	s := New(WithClock(func() time.Time { return current }))

	s.SetWithTTL(0, "temp", domain.String("v"), 10*time.Millisecond)
	current = now.Add(time.Second)

	_, ok := s.Get(0, "temp")
	require.False(t, ok)

	// The read evicted the entry, so listings no longer see it.
	keys, err := s.Keys(0)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_KeysIncludesExpiredUnevicted(t *testing.T) {
	now := time.Now()
	current := now
	s := New(WithClock(func() time.Time { return current }))

	s.Set(0, "live", domain.String("v"))
	s.SetWithTTL(0, "dead", domain.String("v"), 10*time.Millisecond)
	current = now.Add(time.Second)

	// Keys does not filter expired entries; only a read evicts.
	keys, err := s.Keys(0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"live", "dead"}, keys)
}

func TestStore_OutOfRangeDatabase(t *testing.T) {
	s := New()

	// Writes and reads out of range are silent no-ops.
	s.Set(NumDatabases, "k", domain.String("v"))
	s.Set(-1, "k", domain.String("v"))
	_, ok := s.Get(NumDatabases, "k")
	assert.False(t, ok)
	_, ok = s.Get(-1, "k")
	assert.False(t, ok)

	// Listing an out-of-range database reports an error.
	_, err := s.Keys(NumDatabases)
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
	_, err = s.Keys(-1)
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestStore_LenAndTotalKeys(t *testing.T) {
	s := New()

	s.Set(0, "a", domain.String("1"))
	s.Set(0, "b", domain.String("2"))
	s.Set(3, "c", domain.String("3"))

	assert.Equal(t, 2, s.Len(0))
	assert.Equal(t, 1, s.Len(3))
	assert.Equal(t, 0, s.Len(1))
	assert.Equal(t, 3, s.TotalKeys())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := string(rune('a' + id))
			for j := 0; j < 500; j++ {
				s.Set(id%NumDatabases, key, domain.String("v"))
				s.Get(id%NumDatabases, key)
				s.Keys(id % NumDatabases)
			}
		}(i)
	}
	wg.Wait()
}

// snapshotFixture assembles a minimal valid snapshot file: one
// database selector, one plain key and one key with a millisecond
// expiry.
func snapshotFixture(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	var b []byte
	b = append(b, []byte("REDIS0011")...)
	b = append(b, 0xFE, 0x00)

	// "foo" -> "bar"
	b = append(b, 0x00, 0x03)
	b = append(b, []byte("foo")...)
	b = append(b, 0x03)
	b = append(b, []byte("bar")...)

	// "tmp" -> "val", with expiry
	b = append(b, 0xFC)
	b = binary.LittleEndian.AppendUint64(b, uint64(expiresAt.UnixMilli()))
	b = append(b, 0x00, 0x03)
	b = append(b, []byte("tmp")...)
	b = append(b, 0x03)
	b = append(b, []byte("val")...)

	b = append(b, 0xFF)
	b = append(b, make([]byte, 8)...)

	path := filepath.Join(t.TempDir(), "dump.rdb")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

func TestStore_LoadSnapshot(t *testing.T) {
	path := snapshotFixture(t, time.Now().Add(time.Hour))

	s := New()
	require.NoError(t, s.LoadSnapshot(path))

	got, ok := s.Get(0, "foo")
	require.True(t, ok)
	assert.Equal(t, "bar", got.Str)

	got, ok = s.Get(0, "tmp")
	require.True(t, ok, "future-dated expiry should still be live")
	assert.Equal(t, "val", got.Str)
}

func TestStore_LoadSnapshot_ExpiredAtLoad(t *testing.T) {
	path := snapshotFixture(t, time.Now().Add(-time.Hour))

	s := New()
	require.NoError(t, s.LoadSnapshot(path))

	_, ok := s.Get(0, "foo")
	assert.True(t, ok)

	// Keys whose snapshot expiry already passed read as absent.
	_, ok = s.Get(0, "tmp")
	assert.False(t, ok)
}

func TestStore_LoadSnapshot_ReplacesContents(t *testing.T) {
	path := snapshotFixture(t, time.Now().Add(time.Hour))

	s := New()
	s.Set(0, "stale", domain.String("v"))
	s.Set(5, "other", domain.String("v"))

	require.NoError(t, s.LoadSnapshot(path))

	_, ok := s.Get(0, "stale")
	assert.False(t, ok, "load replaces prior contents")
	_, ok = s.Get(5, "other")
	assert.False(t, ok, "load clears every database")
	_, ok = s.Get(0, "foo")
	assert.True(t, ok)
}

func TestStore_LoadSnapshot_ParseErrorLeavesStoreIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rdb")
	require.NoError(t, os.WriteFile(path, []byte("NOTREDIS"), 0644))

	s := New()
	s.Set(0, "keep", domain.String("v"))

	err := s.LoadSnapshot(path)
	require.Error(t, err)

	got, ok := s.Get(0, "keep")
	require.True(t, ok, "failed load must not clear the store")
	assert.Equal(t, "v", got.Str)
}

func TestStore_LoadSnapshot_MissingFile(t *testing.T) {
	s := New()
	err := s.LoadSnapshot(filepath.Join(t.TempDir(), "nope.rdb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
