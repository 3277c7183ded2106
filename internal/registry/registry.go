// Package registry catalogues rendered chess boards.
//
// A Registry owns the id counter and an insertion-ordered catalogue of
// BoardResource values. Parsing, rendering and storage I/O happen outside
// the catalogue lock; only minting an id and inserting or snapshotting the
// catalogue hold it. Minting also reserves the board's catalogue slot, so
// List follows id order even when saves finish out of order. Every operation returns a tagged result rather than
// an error so the transport layer can always build a reply.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/metrics"
	"github.com/zjrosen/boardwalk/internal/position"
	"github.com/zjrosen/boardwalk/internal/pubsub"
	"github.com/zjrosen/boardwalk/internal/render"
	"github.com/zjrosen/boardwalk/internal/store"
)

// descriptionLimit is how much of the notation a description quotes.
const descriptionLimit = 30

// BoardResource is one catalogued board. It is never modified after creation.
type BoardResource struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri"`
	FilePath    string    `json:"file_path"`
	MimeType    string    `json:"mime_type"`
	FEN         string    `json:"fen"`
	Size        int       `json:"size"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// entry is a catalogue slot. A pending slot belongs to a Create whose save
// has not finished; lookups and listings skip it.
type entry struct {
	board   BoardResource
	pending bool
}

// Renderer draws positions. *render.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, pos *position.Position, size int) (*render.RenderedImage, error)
}

// Registry is safe for concurrent use.
type Registry struct {
	renderer Renderer
	store    store.Store
	broker   *pubsub.Broker[BoardResource]
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	boards  *orderedmap.OrderedMap[string, entry]
	counter int
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records creations and catalogue size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty Registry.
func New(renderer Renderer, st store.Store, opts ...Option) *Registry {
	r := &Registry{
		renderer: renderer,
		store:    st,
		broker:   pubsub.NewBroker[BoardResource](),
		now:      time.Now,
		boards:   orderedmap.New[string, entry](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Broker publishes CreatedEvent and DeletedEvent for catalogue changes.
func (r *Registry) Broker() *pubsub.Broker[BoardResource] {
	return r.broker
}

// Close stops event delivery.
func (r *Registry) Close() {
	r.broker.Close()
}

// Create parses fen, renders it at size and catalogues the result.
func (r *Registry) Create(ctx context.Context, fen string, size int) CreateResult {
	pos, err := position.Parse(fen)
	if err != nil {
		log.Debug(log.CatBoard, "rejected position", "fen", fen, "error", err)
		return CreateResult{FEN: fen, Size: size, Err: err}
	}

	img, err := r.renderer.Render(ctx, pos, size)
	if err != nil {
		log.ErrorErr(log.CatBoard, "render failed", err, "fen", fen, "size", size)
		return CreateResult{FEN: fen, Size: size, Err: err}
	}

	id := r.mint()

	path, err := r.store.Save(ctx, img, id)
	if err != nil {
		r.mu.Lock()
		r.boards.Delete(id)
		r.mu.Unlock()
		log.ErrorErr(log.CatBoard, "save failed, id discarded", err, "id", id)
		return CreateResult{FEN: fen, Size: size, Err: err}
	}

	res := BoardResource{
		ID:          id,
		URI:         URI(id),
		FilePath:    path,
		MimeType:    img.Format.MimeType(),
		FEN:         fen,
		Size:        size,
		Name:        "Chess board " + id,
		Description: describe(fen),
		CreatedAt:   r.now(),
	}

	r.mu.Lock()
	r.boards.Set(id, entry{board: res})
	n := r.sizeLocked()
	r.mu.Unlock()

	r.metrics.BoardCreated(img.Format.String())
	r.metrics.SetCatalogueSize(n)
	r.broker.Publish(pubsub.CreatedEvent, res)
	log.Info(log.CatBoard, "created board", "id", id, "format", img.Format, "size", size)

	return CreateResult{
		Resource: res,
		FEN:      fen,
		Size:     size,
		Message:  fmt.Sprintf("Created chess board resource %s for position %s", res.URI, pos.String()),
	}
}

// mint reserves the next id and its pending catalogue slot. Ids are never
// handed out twice, even when the save that follows fails.
func (r *Registry) mint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	id := fmt.Sprintf("board_%d", r.counter)
	r.boards.Set(id, entry{board: BoardResource{ID: id}, pending: true})
	return id
}

// Get returns the stored bytes of a board.
func (r *Registry) Get(ctx context.Context, id string) GetResult {
	res, ok := r.Lookup(id)
	if !ok {
		return GetResult{ID: id, Err: &ResourceNotFoundError{ID: id}}
	}

	data, err := r.store.Read(ctx, res.FilePath)
	if err != nil {
		if store.IsMissing(err) {
			log.Warn(log.CatBoard, "board file missing", "id", id, "path", res.FilePath)
		} else {
			log.ErrorErr(log.CatBoard, "reading board failed", err, "id", id)
		}
		return GetResult{ID: id, Resource: res, Err: err}
	}
	return GetResult{ID: id, Resource: res, Data: data, MimeType: res.MimeType}
}

// GetByURI resolves a chess://board/{id} address and delegates to Get.
func (r *Registry) GetByURI(ctx context.Context, uri string) GetResult {
	id, err := ParseURI(uri)
	if err != nil {
		return GetResult{ID: uri, Err: &ResourceNotFoundError{ID: uri}}
	}
	return r.Get(ctx, id)
}

// Lookup returns the catalogued board with id.
func (r *Registry) Lookup(id string) (BoardResource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.boards.Get(id)
	if !ok || e.pending {
		return BoardResource{}, false
	}
	return e.board, true
}

// FindByPath returns the board backed by path, if any.
func (r *Registry) FindByPath(path string) (BoardResource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pair := r.boards.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.pending && pair.Value.board.FilePath == path {
			return pair.Value.board, true
		}
	}
	return BoardResource{}, false
}

// List returns every catalogued board in creation order.
func (r *Registry) List() ListResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ListResult{Boards: r.snapshot()}
}

// Clear empties the catalogue and deletes every backing file. Deletion is
// best effort: failures are collected and the remaining files are still
// attempted. Creates still saving keep their slots and land after Clear.
func (r *Registry) Clear(ctx context.Context) ClearResult {
	r.mu.Lock()
	boards := r.snapshot()
	inFlight := orderedmap.New[string, entry]()
	for pair := r.boards.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.pending {
			inFlight.Set(pair.Key, pair.Value)
		}
	}
	r.boards = inFlight
	r.mu.Unlock()

	var errs []error
	for _, res := range boards {
		if err := r.store.Delete(ctx, res.FilePath); err != nil && !store.IsMissing(err) {
			log.ErrorErr(log.CatBoard, "deleting board failed", err, "id", res.ID)
			errs = append(errs, fmt.Errorf("%s: %w", res.ID, err))
		}
		r.broker.Publish(pubsub.DeletedEvent, res)
	}

	r.metrics.SetCatalogueSize(0)
	log.Info(log.CatBoard, "cleared boards", "count", len(boards), "failures", len(errs))
	return ClearResult{Cleared: len(boards), Err: errors.Join(errs...)}
}

// snapshot copies the finished boards in id order. Callers hold mu.
func (r *Registry) snapshot() []BoardResource {
	out := make([]BoardResource, 0, r.boards.Len())
	for pair := r.boards.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.pending {
			out = append(out, pair.Value.board)
		}
	}
	return out
}

// sizeLocked counts finished boards. Callers hold mu.
func (r *Registry) sizeLocked() int {
	n := 0
	for pair := r.boards.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.pending {
			n++
		}
	}
	return n
}

func describe(fen string) string {
	if len(fen) > descriptionLimit {
		fen = fen[:descriptionLimit] + "..."
	}
	return "Chess position: " + fen
}
