package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/store"
)

// Source names used by the standard source list.
const (
	SourceFile   = "file"
	SourceCache  = "cache"
	SourceLegacy = "legacy"
)

// Candidate is one source's view of the data.
type Candidate struct {
	Source    string
	Rank      int
	Snapshot  *schema.Snapshot
	WrittenAt time.Time // zero when the source cannot tell

	// LastResort candidates lose to any candidate that is not one.
	LastResort bool
}

// Source produces at most one candidate snapshot.
type Source interface {
	Name() string
	// Read returns (nil, nil) when the source holds no data.
	Read(ctx context.Context) (*Candidate, error)
}

// StoreSource adapts a store.Store. If the store also implements
// store.Timestamped, its write time is attached to the candidate.
type StoreSource struct {
	label string
	store store.Store
}

// NewStoreSource names a store as a migration source.
func NewStoreSource(name string, s store.Store) *StoreSource {
	return &StoreSource{label: name, store: s}
}

// Name implements Source.
func (s *StoreSource) Name() string { return s.label }

// Read implements Source.
func (s *StoreSource) Read(ctx context.Context) (*Candidate, error) {
	snap, err := s.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c := &Candidate{Source: s.label, Snapshot: snap}
	if ts, ok := s.store.(store.Timestamped); ok {
		if at, err := ts.LastWritten(ctx); err == nil {
			c.WrittenAt = at
		}
	}
	return c, nil
}

// LegacySource synthesizes a snapshot from the per-collection keys written by
// builds that predate the single document. It yields data only when the
// legacy todo list is non-empty.
type LegacySource struct {
	cache *store.Cache
}

// NewLegacySource reads legacy keys from cache.
func NewLegacySource(cache *store.Cache) *LegacySource {
	return &LegacySource{cache: cache}
}

// Name implements Source.
func (s *LegacySource) Name() string { return SourceLegacy }

// Read implements Source. It yields nothing once the source was retired.
func (s *LegacySource) Read(ctx context.Context) (*Candidate, error) {
	retired, err := s.cache.LegacyRetired(ctx)
	if err != nil {
		return nil, err
	}
	if retired {
		return nil, nil
	}
	recs, err := s.cache.LegacyRecords(ctx)
	if err != nil {
		return nil, err
	}
	return legacyCandidate(s.cache.Path(), recs)
}

// Retire implements Retirer. The legacy keys stay in place.
func (s *LegacySource) Retire(ctx context.Context) error {
	return s.cache.RetireLegacy(ctx)
}

func legacyCandidate(location string, recs map[string]string) (*Candidate, error) {
	snap := &schema.Snapshot{Tab: schema.DefaultTab}

	if err := decodeLegacy(location, "todos", recs, &snap.Todos); err != nil {
		return nil, err
	}
	if len(snap.Todos) == 0 {
		return nil, nil
	}
	if err := decodeLegacy(location, "passwords", recs, &snap.Passwords); err != nil {
		return nil, err
	}
	if err := decodeLegacy(location, "videos", recs, &snap.Videos); err != nil {
		return nil, err
	}
	if err := decodeLegacy(location, "books", recs, &snap.Books); err != nil {
		return nil, err
	}
	if err := decodeLegacy(location, "notes", recs, &snap.Notes); err != nil {
		return nil, err
	}
	snap.Theme = recs["theme"]

	return &Candidate{Source: SourceLegacy, Snapshot: snap, LastResort: true}, nil
}

func decodeLegacy(location, key string, recs map[string]string, dst any) error {
	raw, ok := recs[key]
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return &store.MalformedError{
			Location: fmt.Sprintf("%s#%s", location, key),
			Err:      err,
		}
	}
	return nil
}
