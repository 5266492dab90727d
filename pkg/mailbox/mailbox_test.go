package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	mb := New[int]()
	for i := 0; i < 5; i++ {
		mb.Put(i)
	}

	assert.Equal(t, 5, mb.Len())
	<-mb.Ready()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, mb.Drain())
	assert.Empty(t, mb.Drain())
	assert.Equal(t, 0, mb.Len())
}

func TestMailbox_ConcurrentPutNeverBlocks(t *testing.T) {
	mb := New[int]()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				mb.Put(i)
			}
		}()
	}
	wg.Wait()

	total := 0
	for mb.Len() > 0 {
		<-mb.Ready()
		total += len(mb.Drain())
	}
	require.Equal(t, 8000, total)
}
