package graphstore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"memcore/internal/graph"
	"memcore/internal/logging"
)

// Writer subscribes to a Graph as a graph.Sink and coalesces bursts of
// mutations into a single debounced SaveGraph call roughly 500ms after
// the last mutation.
type Writer struct {
	g       *graph.Graph
	backend Backend
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool

	sf singleflight.Group
}

// NewWriter attaches debounced persistence to g, backed by backend. The
// caller must call Close to stop the timer; Close does not flush, so call
// Flush first to persist any pending save.
func NewWriter(g *graph.Graph, backend Backend, debounce time.Duration) *Writer {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Writer{g: g, backend: backend, debounce: debounce}
	g.SetSink(w)
	return w
}

// OnGraphEvent implements graph.Sink: every mutation (re)starts the
// debounce timer.
func (w *Writer) OnGraphEvent(graph.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Writer) flush() {
	log := logging.For("graphstore")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.save(ctx); err != nil {
		log.Error().Err(err).Msg("debounced saveGraph failed")
	}
}

// Flush forces an immediate synchronous save, bypassing the debounce
// timer. Useful on shutdown.
func (w *Writer) Flush(ctx context.Context) error {
	return w.save(ctx)
}

// save coalesces a debounce-triggered flush racing against an explicit
// Flush call into a single SaveGraph: both want to persist the same
// snapshot, so the later caller just waits on the in-flight one instead of
// triggering a redundant write.
func (w *Writer) save(ctx context.Context) error {
	_, err, _ := w.sf.Do("save", func() (any, error) {
		return nil, w.backend.SaveGraph(ctx, w.g.Snapshot())
	})
	return err
}

// Close stops the debounce timer. It does not flush; call Flush first if
// a final save is wanted.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
