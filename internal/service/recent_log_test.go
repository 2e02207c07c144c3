package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

func TestRecentLog_MostRecentFirst(t *testing.T) {
	l := NewRecentLog(3)
	l.Add(domain.RecentEntry{Asset: "a"})
	l.Add(domain.RecentEntry{Asset: "b"})

	got := l.List()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Asset)
	assert.Equal(t, "a", got[1].Asset)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestRecentLog_EvictsOldestAfterCapacity(t *testing.T) {
	l := NewRecentLog(0)
	require.Equal(t, 100, l.Cap())

	for i := 0; i < 101; i++ {
		l.Add(domain.RecentEntry{Asset: fmt.Sprintf("asset-%d", i)})
	}

	got := l.List()
	require.Len(t, got, 100)
	assert.Equal(t, "asset-100", got[0].Asset)
	assert.Equal(t, "asset-1", got[99].Asset)
	for _, e := range got {
		assert.NotEqual(t, "asset-0", e.Asset)
	}
}

func TestRecentLog_AssignsTimestamp(t *testing.T) {
	l := NewRecentLog(2)
	l.now = func() time.Time { return time.UnixMilli(1234) }

	e := l.Add(domain.RecentEntry{Asset: "a"})
	assert.Equal(t, int64(1234), e.At)

	e = l.Add(domain.RecentEntry{Asset: "b", At: 99, ID: "fixed"})
	assert.Equal(t, int64(99), e.At)
	assert.Equal(t, "fixed", e.ID)
}

func TestRecentLog_ListIsACopy(t *testing.T) {
	l := NewRecentLog(2)
	l.Add(domain.RecentEntry{Asset: "a"})

	got := l.List()
	got[0].Asset = "mutated"
	assert.Equal(t, "a", l.List()[0].Asset)
}

func TestRecentLog_ConcurrentAdds(t *testing.T) {
	l := NewRecentLog(100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Add(domain.RecentEntry{Asset: "x"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, l.Len())
	assert.Len(t, l.List(), 100)
}
