package wsrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlab/fedisync/bridge"
)

// Releasing a stream while a batch is being delivered must not panic the
// delivering goroutine, even when the buffer is full and the consumer is gone.
func TestSubStreamReleaseDuringDeliver(t *testing.T) {
	st := newSubStream(1)
	st.deliver(&bridge.DiffBatch{}) // fill the buffer

	delivered := make(chan struct{})
	go func() {
		st.deliver(&bridge.DiffBatch{}) // blocks, nobody is reading
		close(delivered)
	}()

	time.Sleep(20 * time.Millisecond)
	st.release()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("deliver did not return after release")
	}

	// buffered batch still drains, then the channel reports closed
	_, ok := <-st.ch
	assert.True(t, ok)
	_, ok = <-st.ch
	assert.False(t, ok)
}

func TestSubStreamDeliverAfterRelease(t *testing.T) {
	st := newSubStream(4)
	st.release()
	st.release() // idempotent

	st.deliver(&bridge.DiffBatch{}) // dropped, no panic

	_, ok := <-st.ch
	require.False(t, ok)
}

func TestSubStreamDeliverReachesConsumer(t *testing.T) {
	st := newSubStream(4)
	b := &bridge.DiffBatch{Handle: 7, Token: "t1"}
	st.deliver(b)

	got := <-st.ch
	require.Same(t, b, got)
	st.release()
	_, ok := <-st.ch
	assert.False(t, ok)
}
