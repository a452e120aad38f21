package overlay

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-arlens/pkg/geometry"
)

// Action describes what Upsert did with an update.
type Action int

const (
	ActionRejected Action = iota
	ActionCreated
	ActionUpdated
	ActionIgnored // Matched, but the move was below the noise threshold
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	case ActionIgnored:
		return "ignored"
	default:
		return "rejected"
	}
}

// Update is one recognized and mapped text occurrence.
type Update struct {
	Text           string
	TranslatedText string
	Pending        bool // TranslatedText is a placeholder
	Confidence     float64
	Position       geometry.Point // Mapped screen center
	Size           geometry.Size  // Mapped screen size
	Box            geometry.Rect  // Normalized box Position and Size were mapped from
	Now            time.Time
}

// Result reports the outcome of Upsert.
type Result struct {
	ID      uuid.UUID
	Action  Action
	Evicted []uuid.UUID
}

// Store holds the current overlays. It is not safe for concurrent use; a
// single owner goroutine drives it and publishes Snapshot copies.
type Store struct {
	cfg      Config
	overlays map[uuid.UUID]*Overlay
	seq      uint64

	// NewID generates overlay IDs. Tests may replace it.
	NewID func() uuid.UUID
}

// NewStore creates an empty store. The staleness mode in cfg cannot be
// changed afterwards.
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		cfg:      cfg,
		overlays: make(map[uuid.UUID]*Overlay),
		NewID:    uuid.New,
	}, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Upsert matches u against existing overlays by normalized text and
// proximity, updating the nearest match or creating a new overlay. Creating
// may evict the least recently seen overlays to stay within MaxOverlays.
func (s *Store) Upsert(u Update) (Result, error) {
	if strings.TrimSpace(u.TranslatedText) == "" {
		return Result{Action: ActionRejected}, ErrEmptyTranslation
	}
	if !u.Size.IsPositive() {
		return Result{Action: ActionRejected}, ErrInvalidSize
	}
	key := NormalizeKey(u.Text)
	if key == "" {
		return Result{Action: ActionRejected}, ErrEmptyText
	}

	if o := s.match(key, u.Position); o != nil {
		return Result{ID: o.ID, Action: s.update(o, u)}, nil
	}

	o := s.create(key, u)
	return Result{ID: o.ID, Action: ActionCreated, Evicted: s.evict()}, nil
}

// match returns the nearest overlay with the same key inside MatchRadius.
func (s *Store) match(key string, pos geometry.Point) *Overlay {
	var best *Overlay
	bestDist := s.cfg.MatchRadius
	for _, o := range s.overlays {
		if o.Key != key {
			continue
		}
		d := o.ScreenPosition.Distance(pos)
		if d > bestDist {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && o.order < best.order) {
			best = o
			bestDist = d
		}
	}
	return best
}

func (s *Store) update(o *Overlay, u Update) Action {
	o.LastSeen = u.Now
	o.TargetPosition = u.Position
	o.Box = u.Box
	if u.Confidence > 0 {
		o.Confidence = u.Confidence
	}

	// A real translation replaces a placeholder; a placeholder never
	// replaces a real translation.
	if o.Pending && !u.Pending {
		o.TranslatedText = u.TranslatedText
		o.Pending = false
		o.FontSize = FontSize(s.cfg, o.OriginalSize.Height, o.TranslatedText)
	}

	d := o.ScreenPosition.Distance(u.Position)
	if d < s.cfg.NoiseThreshold {
		return ActionIgnored
	}

	if o.UpdateCount < 2 || d > s.cfg.SnapDistance {
		o.ScreenPosition = u.Position
	} else {
		a := s.cfg.SmoothingFactor
		o.ScreenPosition = geometry.Point{
			X: a*u.Position.X + (1-a)*o.ScreenPosition.X,
			Y: a*u.Position.Y + (1-a)*o.ScreenPosition.Y,
		}
	}
	o.UpdateCount++
	return ActionUpdated
}

func (s *Store) create(key string, u Update) *Overlay {
	s.seq++
	o := &Overlay{
		ID:             s.NewID(),
		Key:            key,
		OriginalText:   strings.TrimSpace(u.Text),
		TranslatedText: u.TranslatedText,
		Pending:        u.Pending,
		Confidence:     u.Confidence,
		ScreenPosition: u.Position,
		TargetPosition: u.Position,
		OriginalSize:   u.Size,
		Box:            u.Box,
		FontSize:       FontSize(s.cfg, u.Size.Height, u.TranslatedText),
		FirstSeen:      u.Now,
		LastSeen:       u.Now,
		UpdateCount:    1,
		order:          s.seq,
	}
	s.overlays[o.ID] = o
	return o
}

// evict removes the least recently seen overlays until the store is within
// MaxOverlays. Ties go to the one created first.
func (s *Store) evict() []uuid.UUID {
	var evicted []uuid.UUID
	for len(s.overlays) > s.cfg.MaxOverlays {
		var oldest *Overlay
		for _, o := range s.overlays {
			if oldest == nil || olderThan(o, oldest) {
				oldest = o
			}
		}
		delete(s.overlays, oldest.ID)
		evicted = append(evicted, oldest.ID)
	}
	return evicted
}

func olderThan(a, b *Overlay) bool {
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.Before(b.LastSeen)
	}
	if !a.FirstSeen.Equal(b.FirstSeen) {
		return a.FirstSeen.Before(b.FirstSeen)
	}
	return a.order < b.order
}

// ApplyTranslation fills every pending overlay for key with translated and
// recomputes its font size. It returns the number of overlays changed.
func (s *Store) ApplyTranslation(key, translated string) int {
	if strings.TrimSpace(translated) == "" {
		return 0
	}
	key = NormalizeKey(key)
	n := 0
	for _, o := range s.overlays {
		if o.Key != key || !o.Pending {
			continue
		}
		o.TranslatedText = translated
		o.Pending = false
		o.FontSize = FontSize(s.cfg, o.OriginalSize.Height, translated)
		n++
	}
	return n
}

// Sweep removes stale overlays and returns their IDs. It does nothing in
// Pinboard mode.
func (s *Store) Sweep(now time.Time) []uuid.UUID {
	if s.cfg.Staleness != LiveTracking {
		return nil
	}
	var removed []uuid.UUID
	for id, o := range s.overlays {
		if o.IsStale(now, s.cfg) {
			delete(s.overlays, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Remap places every overlay again from its normalized box, as after a
// rotation or viewport change. Positions snap to the new placement and font
// sizes follow the new height. Overlays without a box are left where they
// are. It returns the number of overlays moved.
func (s *Store) Remap(place func(box geometry.Rect) geometry.Placement) int {
	n := 0
	for _, o := range s.overlays {
		if o.Box.Width <= 0 || o.Box.Height <= 0 {
			continue
		}
		p := place(o.Box)
		if !p.Size.IsPositive() {
			continue
		}
		o.ScreenPosition = p.Position
		o.TargetPosition = p.Position
		o.OriginalSize = p.Size
		o.FontSize = FontSize(s.cfg, p.Size.Height, o.TranslatedText)
		n++
	}
	return n
}

// Remove deletes a single overlay.
func (s *Store) Remove(id uuid.UUID) bool {
	if _, ok := s.overlays[id]; !ok {
		return false
	}
	delete(s.overlays, id)
	return true
}

// Get returns a copy of the overlay with the given ID.
func (s *Store) Get(id uuid.UUID) (Overlay, bool) {
	o, ok := s.overlays[id]
	if !ok {
		return Overlay{}, false
	}
	return *o, true
}

// Clear removes every overlay and returns how many were removed.
func (s *Store) Clear() int {
	n := len(s.overlays)
	clear(s.overlays)
	return n
}

// Len returns the number of overlays.
func (s *Store) Len() int {
	return len(s.overlays)
}

// Snapshot returns copies of all overlays ordered by creation.
func (s *Store) Snapshot() []Overlay {
	out := make([]Overlay, 0, len(s.overlays))
	for _, o := range s.overlays {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].order < out[j].order
	})
	return out
}
