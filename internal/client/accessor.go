package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

// DefaultCooldown is the pause before a forced client rebuild.
const DefaultCooldown = 5 * time.Second

// SchemaSink receives the schema of every newly built client.
type SchemaSink interface {
	PublishSchema(doc *openapi3.T, raw []byte)
}

// Options configures an Accessor.
type Options struct {
	// APIBase is the API root, e.g. https://api.boundlexx.app/api/v1.
	APIBase string
	// ServerOverride, when set, replaces the servers declared in the schema.
	ServerOverride string
	Cooldown       time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
	Sink           SchemaSink
}

type schemaDoc struct {
	doc *openapi3.T
	raw []byte
}

// Accessor lazily builds and memoizes the single API client of the process.
type Accessor struct {
	opts  Options
	sleep func(context.Context, time.Duration) error

	client atomic.Pointer[Client]

	mu     sync.Mutex // serializes (re)builds; guards schema
	schema *schemaDoc
}

// NewAccessor creates an Accessor. No request is made until Client is called.
func NewAccessor(opts Options) *Accessor {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Accessor{opts: opts, sleep: sleepCtx}
}

// SchemaURL is the discovery document location.
func (a *Accessor) SchemaURL() string {
	return strings.TrimRight(a.opts.APIBase, "/") + "/schema/?format=openapi-json"
}

// Client returns the process API client, building it on first use.
//
// With force set the call first waits out the cooldown, then refetches the
// schema and rebuilds the client even if one exists. Concurrent callers
// converge on a single build: whoever takes the lock second finds the
// freshly published client and returns it.
func (a *Accessor) Client(ctx context.Context, force bool) (*Client, error) {
	current := a.client.Load()
	if current != nil && !force {
		return current, nil
	}

	if force {
		a.opts.Logger.Warn("forcing API client rebuild",
			zap.Duration("cooldown", a.opts.Cooldown))
		if err := a.sleep(ctx, a.opts.Cooldown); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if published := a.client.Load(); published != nil && (!force || published != current) {
		return published, nil
	}

	schema := a.schema
	if schema == nil || force {
		var err error
		schema, err = a.fetchSchema(ctx)
		if err != nil {
			return nil, err
		}
	}

	server, err := a.serverURL(schema.doc)
	if err != nil {
		return nil, err
	}

	c := newClient(schema.doc, server, a.opts.HTTPClient)
	a.schema = schema
	a.client.Store(c)
	if a.opts.Sink != nil {
		a.opts.Sink.PublishSchema(schema.doc, schema.raw)
	}

	a.opts.Logger.Info("API client ready",
		zap.String("client", c.ID().String()),
		zap.String("server", c.Server()),
		zap.Int("operations", len(c.ops)))
	return c, nil
}

func (a *Accessor) fetchSchema(ctx context.Context) (*schemaDoc, error) {
	u := a.SchemaURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building schema request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching schema: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching schema: %w", &StatusError{URL: u, Code: resp.StatusCode})
	}

	doc, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return &schemaDoc{doc: doc, raw: raw}, nil
}

// serverURL picks the origin operations are rebased onto: the explicit
// override, else the first declared server, else the API base origin.
func (a *Accessor) serverURL(doc *openapi3.T) (*url.URL, error) {
	base, err := url.Parse(a.opts.APIBase)
	if err != nil {
		return nil, fmt.Errorf("parsing api base: %w", err)
	}

	if a.opts.ServerOverride != "" {
		u, err := url.Parse(a.opts.ServerOverride)
		if err != nil {
			return nil, fmt.Errorf("parsing server override: %w", err)
		}
		return u, nil
	}

	if len(doc.Servers) > 0 && doc.Servers[0] != nil && doc.Servers[0].URL != "" {
		u, err := url.Parse(doc.Servers[0].URL)
		if err != nil {
			return nil, fmt.Errorf("parsing schema server: %w", err)
		}
		return base.ResolveReference(u), nil
	}

	return &url.URL{Scheme: base.Scheme, Host: base.Host}, nil
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
