package policy

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUseCases() []UseCase {
	return []UseCase{
		{ID: "100000", Description: "Primary client application"},
		{ID: "100050", Description: "Mobile application v2"},
	}
}

func TestSnapshotLookupCaseInsensitive(t *testing.T) {
	snap, err := NewSnapshot([]UseCase{{ID: "abc"}}, false, true)
	require.NoError(t, err)

	uc, ok := snap.Lookup("ABC")
	assert.True(t, ok)
	assert.Equal(t, "abc", uc.ID)
}

func TestSnapshotLookupCaseSensitive(t *testing.T) {
	snap, err := NewSnapshot([]UseCase{{ID: "abc"}}, true, true)
	require.NoError(t, err)

	_, ok := snap.Lookup("ABC")
	assert.False(t, ok)

	_, ok = snap.Lookup("abc")
	assert.True(t, ok)
}

func TestSnapshotAllowedIDsKeepsOrder(t *testing.T) {
	snap, err := NewSnapshot(testUseCases(), false, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"100000", "100050"}, snap.AllowedIDs())
}

func TestSnapshotDefaultDescription(t *testing.T) {
	snap, err := NewSnapshot([]UseCase{{ID: "100000"}}, false, true)
	require.NoError(t, err)

	uc, ok := snap.Lookup("100000")
	require.True(t, ok)
	assert.Equal(t, "Use case 100000", uc.Description)
}

func TestSnapshotRejectsDuplicates(t *testing.T) {
	_, err := NewSnapshot([]UseCase{{ID: "abc"}, {ID: "ABC"}}, false, true)
	assert.Error(t, err)

	// Distinct under case-sensitive matching.
	_, err = NewSnapshot([]UseCase{{ID: "abc"}, {ID: "ABC"}}, true, true)
	assert.NoError(t, err)
}

func TestSnapshotSkipsBlankIDs(t *testing.T) {
	snap, err := NewSnapshot([]UseCase{{ID: "  "}, {ID: "100000"}}, false, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"100000"}, snap.AllowedIDs())
}

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	allowlist := []UseCase{{ID: "100000"}}
	var mu sync.Mutex

	loader := LoaderFunc(func() (*Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		return NewSnapshot(allowlist, false, true)
	})

	store, err := NewStore(loader)
	require.NoError(t, err)

	_, ok := store.Current().Lookup("100050")
	assert.False(t, ok)

	mu.Lock()
	allowlist = []UseCase{{ID: "100000"}, {ID: "100050"}}
	mu.Unlock()

	snap, err := store.Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{"100000", "100050"}, snap.AllowedIDs())

	// The very next read observes the new snapshot.
	_, ok = store.Current().Lookup("100050")
	assert.True(t, ok)
}

func TestStoreReloadFailureKeepsOldSnapshot(t *testing.T) {
	calls := 0
	loader := LoaderFunc(func() (*Snapshot, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("source unavailable")
		}
		return NewSnapshot(testUseCases(), false, true)
	})

	store, err := NewStore(loader)
	require.NoError(t, err)

	_, err = store.Reload()
	assert.Error(t, err)
	assert.Equal(t, []string{"100000", "100050"}, store.Current().AllowedIDs())
}

func TestStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	small, err := NewSnapshot([]UseCase{{ID: "a"}}, false, true)
	require.NoError(t, err)
	large, err := NewSnapshot([]UseCase{{ID: "a"}, {ID: "b"}, {ID: "c"}}, false, true)
	require.NoError(t, err)

	next := small
	loader := LoaderFunc(func() (*Snapshot, error) { return next, nil })

	store, err := NewStore(loader)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ids := store.Current().AllowedIDs()
				if len(ids) != 1 && len(ids) != 3 {
					t.Errorf("observed partial snapshot: %v", ids)
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			next = large
		} else {
			next = small
		}
		_, err := store.Reload()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
