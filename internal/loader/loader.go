// Package loader fills resource stores from the paginated list endpoints.
package loader

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meur/boundlexx/internal/client"
	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/store"
)

// ClientSource hands out the API client; *client.Accessor implements it.
type ClientSource interface {
	Client(ctx context.Context, force bool) (*client.Client, error)
}

// Tables resolves the store for a kind; *state.State implements it.
type Tables interface {
	Table(kind models.Kind) (store.Table, error)
}

// Options configures a Loader.
type Options struct {
	PageSize int
	Cooldown time.Duration
	Logger   *zap.Logger
}

// Loader runs page-fetch chains. Pages of one chain are fetched and merged
// strictly in order; chains of different kinds are independent.
type Loader struct {
	source ClientSource
	tables Tables
	opts   Options
	sleep  func(context.Context, time.Duration) error

	mu      sync.Mutex
	running map[runKey]struct{}
}

type runKey struct {
	kind   models.Kind
	locale string
}

// New creates a Loader.
func New(source ClientSource, tables Tables, opts Options) *Loader {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = client.DefaultCooldown
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loader{
		source:  source,
		tables:  tables,
		opts:    opts,
		sleep:   sleepCtx,
		running: make(map[runKey]struct{}),
	}
}

// Load fetches every page of kind and merges it into its store.
// Failures are retried after the cooldown until they succeed; the only
// error returned is from ctx or an unknown kind.
func (l *Loader) Load(ctx context.Context, kind models.Kind, locale string) error {
	spec, err := kind.Spec()
	if err != nil {
		return err
	}
	table, err := l.tables.Table(kind)
	if err != nil {
		return err
	}
	if !spec.Localized {
		locale = ""
	}

	log := l.opts.Logger.With(zap.String("kind", string(kind)), zap.String("locale", locale))

	query := url.Values{"limit": {strconv.Itoa(l.opts.PageSize)}}
	if locale != "" {
		query.Set("lang", locale)
	}

	var next *string
	pages := 0
	for {
		page, err := l.fetch(ctx, log, spec.OperationID, query, next)
		if err != nil {
			return err
		}

		table.MergePage(page.Results, &store.PageMeta{
			Count:  page.Count,
			Next:   page.Next,
			Locale: locale,
		})
		pages++

		if page.Next == nil {
			st := table.Status()
			log.Info("load complete", zap.Int("pages", pages), zap.Int("records", st.Len))
			return nil
		}
		next = page.Next
	}
}

// fetch retrieves one page, retrying until it succeeds or ctx ends.
// A nil next fetches the first page through the list operation.
func (l *Loader) fetch(ctx context.Context, log *zap.Logger, operationID string, query url.Values, next *string) (*models.Page, error) {
	force := false
	for attempt := 1; ; attempt++ {
		c, err := l.source.Client(ctx, force)
		if err == nil {
			var page *models.Page
			if next == nil {
				page, err = c.List(ctx, operationID, query)
			} else {
				page, err = c.Next(ctx, *next)
			}
			if err == nil {
				return page, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if errors.Is(err, client.ErrUnknownOperation) {
			// The accessor sleeps the cooldown itself on forced rebuilds.
			log.Warn("operation missing from schema, rebuilding client",
				zap.String("operation", operationID), zap.Int("attempt", attempt))
			force = true
			continue
		}

		force = false
		log.Warn("page fetch failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("cooldown", l.opts.Cooldown))
		if err := l.sleep(ctx, l.opts.Cooldown); err != nil {
			return nil, err
		}
	}
}

// LoadAll loads several kinds concurrently.
func (l *Loader) LoadAll(ctx context.Context, locale string, kinds ...models.Kind) error {
	if len(kinds) == 0 {
		kinds = models.AllKinds()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, k := range kinds {
		k := k
		g.Go(func() error {
			return l.Load(gctx, k, locale)
		})
	}
	return g.Wait()
}

// Start runs Load in the background on ctx. A load already running for the
// same kind and locale is not duplicated. It reports whether a new load
// was started.
func (l *Loader) Start(ctx context.Context, kind models.Kind, locale string) bool {
	if spec, err := kind.Spec(); err == nil && !spec.Localized {
		locale = ""
	}
	key := runKey{kind: kind, locale: locale}

	l.mu.Lock()
	if _, ok := l.running[key]; ok {
		l.mu.Unlock()
		return false
	}
	l.running[key] = struct{}{}
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.running, key)
			l.mu.Unlock()
		}()
		if err := l.Load(ctx, kind, locale); err != nil && !errors.Is(err, context.Canceled) {
			l.opts.Logger.Error("background load failed",
				zap.String("kind", string(kind)), zap.Error(err))
		}
	}()
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
