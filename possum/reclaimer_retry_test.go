package possum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum/internal/manifest"
)

// Test_Reclaimer_Retry_Requeues_Instead_Of_Dropping covers the failed
// non-blocking lock path in reclaim: losing the race for an orphan's
// exclusive segment lock must not abandon it for the rest of the
// process's lifetime, only defer it.
func Test_Reclaimer_Retry_Requeues_Instead_Of_Dropping(t *testing.T) {
	t.Parallel()

	r := &reclaimer{
		queue: make(chan manifest.OrphanExtent, 1),
		done:  make(chan struct{}),
	}

	ext := manifest.OrphanExtent{ID: 7, Extent: manifest.Extent{FileID: 1, Offset: 0, Length: 10}}

	r.retry(ext)

	select {
	case got := <-r.queue:
		require.Equal(t, ext, got)
	case <-time.After(time.Second):
		t.Fatal("retry must re-enqueue the extent instead of dropping it")
	}

	r.wg.Wait()
}

func Test_Reclaimer_Retry_Stops_On_Done_Without_Requeuing(t *testing.T) {
	t.Parallel()

	r := &reclaimer{
		queue: make(chan manifest.OrphanExtent),
		done:  make(chan struct{}),
	}

	ext := manifest.OrphanExtent{ID: 9, Extent: manifest.Extent{FileID: 1, Offset: 0, Length: 10}}

	r.retry(ext)
	close(r.done)

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retry goroutine must exit once done is closed, even with nobody draining queue")
	}
}
