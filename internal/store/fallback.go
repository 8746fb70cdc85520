package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/muchacho/personal-manager/internal/schema"
)

// ErrDegraded is returned by Fallback.Save when the primary store was
// unavailable and the snapshot went to the fallback store instead. The data
// is persisted; the caller should warn the user.
var ErrDegraded = errors.New("saved to fallback store")

// Fallback writes to Primary and falls back to Secondary when Primary is
// unavailable. Reads always go to Primary; merging sources at startup is the
// job of the migrate package.
type Fallback struct {
	Primary   Store
	Secondary Store
	logger    *log.Logger
}

// NewFallback returns a Fallback store. If logger is nil, a default logger
// writing to stderr is used.
func NewFallback(primary, secondary Store, logger *log.Logger) *Fallback {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Fallback{Primary: primary, Secondary: secondary, logger: logger}
}

// Load reads from the primary store.
func (f *Fallback) Load(ctx context.Context) (*schema.Snapshot, error) {
	return f.Primary.Load(ctx)
}

// Save writes to the primary store, or to the secondary one if the primary is
// unavailable. A successful fallback write returns an error wrapping ErrDegraded.
func (f *Fallback) Save(ctx context.Context, snap *schema.Snapshot) error {
	err := f.Primary.Save(ctx, snap)
	if err == nil || !errors.Is(err, ErrUnavailable) || f.Secondary == nil {
		return err
	}

	f.logger.Printf("Warning: primary store unavailable, writing fallback: %v", err)
	if serr := f.Secondary.Save(ctx, snap); serr != nil {
		return fmt.Errorf("primary and fallback store both failed: %w", errors.Join(err, serr))
	}
	return fmt.Errorf("%w: %v", ErrDegraded, err)
}
