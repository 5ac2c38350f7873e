package lockmap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarkInProgressAndReady(t *testing.T) {
	tbl := MkStatusTable()
	assert.Equal(t, 0, tbl.Tracked())

	tbl.MarkInProgress(5)
	tbl.MarkInProgress(5 + NSHARD) // same shard, different sector
	assert.Equal(t, 2, tbl.Tracked())

	tbl.MarkReady(5)
	assert.Equal(t, 1, tbl.Tracked(), "ready sectors without waiters are forgotten")
	assert.Panics(t, func() { tbl.MarkReady(5) })
	tbl.MarkReady(5 + NSHARD)
	assert.Equal(t, 0, tbl.Tracked())
}

func TestMarkReadyOnReadyPanics(t *testing.T) {
	tbl := MkStatusTable()
	assert.Panics(t, func() { tbl.MarkReady(3) })
}

func TestWaiterParksUntilReady(t *testing.T) {
	tbl := MkStatusTable()
	tbl.MarkInProgress(9)

	acquired := make(chan struct{})
	go func() {
		tbl.MarkInProgress(9)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("waiter claimed an in-progress sector")
	case <-time.After(20 * time.Millisecond):
	}

	assert.Equal(t, 1, tbl.Tracked())
	tbl.MarkReady(9)
	<-acquired
	assert.Equal(t, 1, tbl.Tracked(), "the waiter now holds the sector")
	tbl.MarkReady(9)
	assert.Equal(t, 0, tbl.Tracked())
}

func TestExclusiveUnderContention(t *testing.T) {
	tbl := MkStatusTable()
	var mu sync.Mutex
	owners := make(map[uint64]int)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				sec := uint64(i % 4)
				tbl.MarkInProgress(sec)
				mu.Lock()
				owners[sec]++
				assert.Equal(t, 1, owners[sec])
				mu.Unlock()
				mu.Lock()
				owners[sec]--
				mu.Unlock()
				tbl.MarkReady(sec)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, tbl.Tracked())
}
