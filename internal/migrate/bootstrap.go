package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/store"
)

// Policy decides which candidate wins when more than one source holds data.
type Policy int

const (
	// PreferNewest picks the most recently written candidate. Candidates
	// without a write time lose to any that have one; ties go to the source
	// listed first.
	PreferNewest Policy = iota

	// PreferPrimary picks the first listed source that holds data.
	PreferPrimary

	// PreferFallback lets the second listed source win whenever it holds
	// data, then falls back to list order.
	PreferFallback
)

// String returns the policy name used in configuration.
func (p Policy) String() string {
	switch p {
	case PreferNewest:
		return "newest"
	case PreferPrimary:
		return "primary"
	case PreferFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "newest":
		return PreferNewest, nil
	case "primary":
		return PreferPrimary, nil
	case "fallback":
		return PreferFallback, nil
	}
	return 0, fmt.Errorf("unknown precedence policy %q (want newest, primary or fallback)", s)
}

// Conflict reasons.
const (
	ReasonSuperseded  = "superseded"
	ReasonUnavailable = "unavailable"
	ReasonMalformed   = "malformed"
	ReasonUnsupported = "unsupported"
	ReasonInvalid     = "invalid"
	ReasonIgnored     = "ignored"
)

// Conflict records a source whose data was not used, or could not be read.
type Conflict struct {
	Source    string
	Reason    string
	Detail    string
	Records   int
	WrittenAt time.Time
}

func (c Conflict) String() string {
	s := fmt.Sprintf("%s: %s", c.Source, c.Reason)
	if c.Records > 0 {
		s += fmt.Sprintf(" (%d records)", c.Records)
	}
	if c.Detail != "" {
		s += ": " + c.Detail
	}
	return s
}

// Options configures Bootstrap.
type Options struct {
	Policy Policy

	// WriteBack receives the canonical snapshot when the winner is not the
	// first source. Usually the primary file store.
	WriteBack store.Store

	Env    Env
	Logger *log.Logger
}

// Result describes what Bootstrap produced.
type Result struct {
	Snapshot  *schema.Snapshot
	Source    string // winning source, empty for a fresh snapshot
	Fresh     bool
	Applied   []string
	Conflicts []Conflict

	WroteBack    bool
	WriteBackErr error
}

// Retirer is implemented by sources that should stop yielding data once
// their contents were written back to the primary store.
type Retirer interface {
	Retire(ctx context.Context) error
}

// Bootstrap reads every source in order, migrates each candidate to the
// current schema, picks one according to opts.Policy and logs every other
// source that held data as a conflict. A document that decodes counts as
// data even when it holds no records. Last-resort candidates are only
// considered when no other source produced a document. Sources that fail to read are logged
// and skipped; Bootstrap itself only fails on context cancellation or an
// empty source list.
//
// When the winning source is not the first one (data was recovered from the
// fallback cache or legacy records), the result is written back through
// opts.WriteBack so the recovery runs once, and a winning source that
// implements Retirer is retired.
func Bootstrap(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}
	env := opts.Env.withDefaults()

	res := &Result{}
	type migrated struct {
		*Candidate
		src     Source
		applied []string
	}
	var candidates []migrated

	for rank, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := src.Read(ctx)
		if err != nil {
			reason := ReasonUnavailable
			if errors.Is(err, store.ErrMalformed) {
				reason = ReasonMalformed
			}
			res.Conflicts = append(res.Conflicts, Conflict{Source: src.Name(), Reason: reason, Detail: err.Error()})
			logger.Printf("Warning: source %s skipped (%s): %v", src.Name(), reason, err)
			continue
		}
		if c == nil || c.Snapshot == nil {
			continue
		}
		c.Source = src.Name()
		c.Rank = rank

		applied, err := Migrate(c.Snapshot, env)
		if err != nil {
			res.Conflicts = append(res.Conflicts, Conflict{Source: c.Source, Reason: ReasonUnsupported, Detail: err.Error(), WrittenAt: c.WrittenAt})
			logger.Printf("Warning: source %s skipped: %v", c.Source, err)
			continue
		}
		if err := c.Snapshot.Validate(); err != nil {
			// Still eligible to win; the conflict only records the problem.
			res.Conflicts = append(res.Conflicts, Conflict{Source: c.Source, Reason: ReasonInvalid, Detail: err.Error(), WrittenAt: c.WrittenAt})
			logger.Printf("Warning: source %s failed validation: %v", c.Source, err)
		}
		candidates = append(candidates, migrated{Candidate: c, src: src, applied: applied})
	}

	var documents []migrated
	for _, c := range candidates {
		if !c.LastResort {
			documents = append(documents, c)
		}
	}
	if len(documents) > 0 && len(documents) < len(candidates) {
		for _, c := range candidates {
			if c.LastResort {
				res.Conflicts = append(res.Conflicts, Conflict{
					Source:  c.Source,
					Reason:  ReasonIgnored,
					Detail:  "a stored document exists",
					Records: c.Snapshot.RecordCount(),
				})
			}
		}
		candidates = documents
	}

	if len(candidates) == 0 {
		res.Snapshot = schema.New()
		res.Fresh = true
		logger.Printf("No stored data found, starting fresh")
		return res, nil
	}

	cands := make([]*Candidate, len(candidates))
	for i, c := range candidates {
		cands[i] = c.Candidate
	}
	win := choose(opts.Policy, cands)

	for i, c := range candidates {
		if i == win {
			continue
		}
		res.Conflicts = append(res.Conflicts, Conflict{
			Source:    c.Source,
			Reason:    ReasonSuperseded,
			Detail:    fmt.Sprintf("%s chosen by %s policy", candidates[win].Source, opts.Policy),
			Records:   c.Snapshot.RecordCount(),
			WrittenAt: c.WrittenAt,
		})
	}

	w := candidates[win]
	res.Snapshot = w.Snapshot
	res.Source = w.Source
	res.Applied = w.applied
	logger.Printf("Loaded %d records from %s (steps: %v)", w.Snapshot.RecordCount(), w.Source, w.applied)

	if w.Rank != 0 && opts.WriteBack != nil {
		if err := opts.WriteBack.Save(ctx, w.Snapshot); err != nil {
			res.WriteBackErr = err
			logger.Printf("Warning: failed to write recovered data back: %v", err)
		} else {
			res.WroteBack = true
			logger.Printf("Recovered data from %s written back to %s", w.Source, sources[0].Name())
			if r, ok := w.src.(Retirer); ok {
				if err := r.Retire(ctx); err != nil {
					logger.Printf("Warning: failed to retire source %s: %v", w.Source, err)
				}
			}
		}
	}
	return res, nil
}

// choose returns the index of the winning candidate. cands is in source order.
func choose(p Policy, cands []*Candidate) int {
	switch p {
	case PreferPrimary:
		return 0
	case PreferFallback:
		for i, c := range cands {
			if c.Rank == 1 {
				return i
			}
		}
		return 0
	default:
		best := 0
		for i, c := range cands[1:] {
			if c.WrittenAt.After(cands[best].WrittenAt) {
				best = i + 1
			}
		}
		return best
	}
}
