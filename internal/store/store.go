// Package store accumulates paginated API collections into in-memory tables.
package store

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/meur/boundlexx/internal/models"
)

// DefaultThrottle is the re-check interval of a Completion Waiter.
const DefaultThrottle = 200 * time.Millisecond

// PageMeta is the pagination metadata carried by one page. It is applied
// as a unit: a delta either updates count, next page and locale together
// or leaves all of them alone.
type PageMeta struct {
	Count  int
	Next   *string // nil when the page was the last one
	Locale string
}

// Delta is a batch of records keyed by id, ready to be reduced into a store.
type Delta[K cmp.Ordered] struct {
	Items map[K]models.Record
	Meta  *PageMeta
}

// Table is the kind-agnostic view of a store used by the loader, the HTTP
// facade and the exporter.
type Table interface {
	Kind() models.Kind
	MergePage(results []models.Record, meta *PageMeta)
	Status() Status
	Records() []models.Record
	Lookup(id string) (models.Record, bool)
	Require(ctx context.Context) error
}

// Status summarises a store.
type Status struct {
	Kind        models.Kind `json:"kind"`
	Len         int         `json:"len"`
	Count       *int        `json:"count"`
	Next        *string     `json:"next"`
	NextKnown   bool        `json:"next_known"`
	Locale      string      `json:"locale,omitempty"`
	LastUpdated *time.Time  `json:"last_updated,omitempty"`
	Loaded      bool        `json:"loaded"`
}

// Snapshot is a point-in-time copy of a store.
type Snapshot[K cmp.Ordered] struct {
	Status
	Items map[K]models.Record
}

type options struct {
	localized    bool
	trackRefresh bool
	throttle     time.Duration
	now          func() time.Time
}

// Option configures a Store.
type Option func(*options)

// Localized makes the store remember the locale of the last page metadata.
func Localized() Option {
	return func(o *options) { o.localized = true }
}

// TrackRefresh enables refresh-completion bookkeeping: when a page reports
// no next page and the store holds items, count is set to the number of
// held items and the last-updated time is stamped.
func TrackRefresh() Option {
	return func(o *options) { o.trackRefresh = true }
}

// WithThrottle sets the re-check interval of Require.
func WithThrottle(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.throttle = d
		}
	}
}

// WithClock replaces time.Now for refresh stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Store is an append-only table of records for one resource kind.
type Store[K cmp.Ordered] struct {
	kind models.Kind
	id   func(models.Record) (K, bool)
	opts options

	mu          sync.RWMutex
	items       map[K]models.Record
	count       *int
	next        *string
	nextKnown   bool
	locale      string
	lastUpdated time.Time
	changed     chan struct{}
}

// New creates an empty store keyed by the id extractor.
func New[K cmp.Ordered](kind models.Kind, id func(models.Record) (K, bool), opts ...Option) *Store[K] {
	o := options{throttle: DefaultThrottle, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[K]{
		kind:    kind,
		id:      id,
		opts:    o,
		items:   make(map[K]models.Record),
		changed: make(chan struct{}),
	}
}

// Kind returns the resource kind held by the store.
func (s *Store[K]) Kind() models.Kind {
	return s.kind
}

// Update keys results by id. Records without an id are skipped.
func (s *Store[K]) Update(results []models.Record, meta *PageMeta) Delta[K] {
	items := make(map[K]models.Record, len(results))
	for _, r := range results {
		if k, ok := s.id(r); ok {
			items[k] = r
		}
	}

	d := Delta[K]{Items: items}
	if meta != nil {
		m := *meta
		if m.Next != nil {
			next := *m.Next
			m.Next = &next
		}
		d.Meta = &m
	}
	return d
}

// Reduce merges a delta into the store and wakes any waiters.
// Items are unioned with last-write-wins per id.
func (s *Store[K]) Reduce(d Delta[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, r := range d.Items {
		s.items[k] = r
	}

	if m := d.Meta; m != nil {
		if s.count == nil || m.Count >= *s.count {
			c := m.Count
			s.count = &c
		}
		s.next = m.Next
		s.nextKnown = true
		if s.opts.localized {
			s.locale = m.Locale
		}
		if s.opts.trackRefresh && m.Next == nil && len(s.items) > 0 {
			c := len(s.items)
			s.count = &c
			s.lastUpdated = s.opts.now()
		}
	}

	close(s.changed)
	s.changed = make(chan struct{})
}

// MergePage is Reduce(Update(results, meta)).
func (s *Store[K]) MergePage(results []models.Record, meta *PageMeta) {
	s.Reduce(s.Update(results, meta))
}

// Get returns the record stored under id.
func (s *Store[K]) Get(id K) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	return r, ok
}

// Lookup parses id into the store's key type and returns the record.
func (s *Store[K]) Lookup(id string) (models.Record, bool) {
	k, ok := parseKey[K](id)
	if !ok {
		return nil, false
	}
	return s.Get(k)
}

// Len returns the number of held records.
func (s *Store[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Loaded reports whether the store holds at least the declared count.
func (s *Store[K]) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedLocked()
}

func (s *Store[K]) loadedLocked() bool {
	return s.count != nil && len(s.items) >= *s.count
}

// Status returns a summary of the store.
func (s *Store[K]) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

func (s *Store[K]) statusLocked() Status {
	st := Status{
		Kind:      s.kind,
		Len:       len(s.items),
		NextKnown: s.nextKnown,
		Locale:    s.locale,
		Loaded:    s.loadedLocked(),
	}
	if s.count != nil {
		c := *s.count
		st.Count = &c
	}
	if s.next != nil {
		n := *s.next
		st.Next = &n
	}
	if !s.lastUpdated.IsZero() {
		t := s.lastUpdated
		st.LastUpdated = &t
	}
	return st
}

// Snapshot copies the store. Records themselves are shared.
func (s *Store[K]) Snapshot() Snapshot[K] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make(map[K]models.Record, len(s.items))
	for k, r := range s.items {
		items[k] = r
	}
	return Snapshot[K]{Status: s.statusLocked(), Items: items}
}

// Records returns the held records ordered by id.
func (s *Store[K]) Records() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]K, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]models.Record, len(keys))
	for i, k := range keys {
		out[i] = s.items[k]
	}
	return out
}

func parseKey[K cmp.Ordered](s string) (K, bool) {
	var k K
	switch p := any(&k).(type) {
	case *int:
		v, err := strconv.Atoi(s)
		if err != nil {
			return k, false
		}
		*p = v
	case *string:
		*p = s
	default:
		return k, false
	}
	return k, true
}
