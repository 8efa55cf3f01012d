package cache

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"netfinder/internal/model"
)

func result(ip string) *model.LookupResult {
	return &model.LookupResult{IP: ip, Network: ip + "/32", Country: "US"}
}

func TestLRU_GetAdd(t *testing.T) {
	c := NewLRU(2)

	_, ok := c.Get("1.1.1.1")
	require.False(t, ok)

	c.Add("1.1.1.1", result("1.1.1.1"))
	got, ok := c.Get("1.1.1.1")
	require.True(t, ok)
	require.Equal(t, "1.1.1.1/32", got.Network)

	got.Network = "mutated"
	again, _ := c.Get("1.1.1.1")
	require.Equal(t, "1.1.1.1/32", again.Network)

	stats := c.Stats()
	require.Equal(t, uint64(2), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, 2, stats.Capacity)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(2)
	c.Add("a", result("a"))
	c.Add("b", result("b"))

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Add("c", result("c"))
	require.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
	require.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestLRU_RawKeys(t *testing.T) {
	c := NewLRU(10)
	c.Add("1.2.3.4", result("1.2.3.4"))

	_, ok := c.Get("001.002.003.004")
	require.False(t, ok)
}

func TestLRU_DefaultSize(t *testing.T) {
	require.Equal(t, DefaultSize, NewLRU(0).Stats().Capacity)
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU(50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := strconv.Itoa((i + j) % 80)
				if _, ok := c.Get(key); !ok {
					c.Add(key, result(key))
				}
			}
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, c.Len(), 50)
}
