package subjects

import (
	"context"
	"strings"

	"subject-choices/internal/logger"
	"subject-choices/internal/metrics"
	"subject-choices/internal/model"

	"github.com/rs/zerolog"
)

// MappingStore is the operator-editable mapping tier. FindMapping returns nil, nil when no mapping exists.
type MappingStore interface {
	FindMapping(ctx context.Context, yearGroup model.YearGroup, rawLabel string) (*model.SubjectMapping, error)
}

// Source records which tier produced a resolved name.
type Source string

const (
	SourceNone        Source = "none"
	SourceOverride    Source = "override"
	SourceBuiltin     Source = "builtin"
	SourcePassthrough Source = "passthrough"
)

type Resolution struct {
	// Input is the trimmed label that was resolved.
	Input string
	// Name is empty when the input was blank.
	Name   string
	Source Source
	// LookupErr is set when the mapping store failed and resolution fell back to the catalog.
	LookupErr error
}

func (r Resolution) Absent() bool {
	return r.Source == SourceNone
}

// Mapped reports whether resolution changed the label. A mapping that resolves
// a label to itself does not count.
func (r Resolution) Mapped() bool {
	return r.Source != SourceNone && r.Name != r.Input
}

type Resolver struct {
	store   MappingStore
	catalog *Catalog
	log     zerolog.Logger
}

func NewResolver(store MappingStore, catalog *Catalog) *Resolver {
	return &Resolver{
		store:   store,
		catalog: catalog,
		log:     logger.Get().With().Str("component", "name_resolver").Logger(),
	}
}

// Resolve maps a raw label to its display name. The store is consulted on every
// call so operator edits apply immediately.
func (r *Resolver) Resolve(ctx context.Context, raw string, yearGroup model.YearGroup) Resolution {
	label := strings.TrimSpace(raw)
	if label == "" {
		return Resolution{Source: SourceNone}
	}

	var lookupErr error
	if r.store != nil {
		mapping, err := r.store.FindMapping(ctx, yearGroup, label)
		switch {
		case err != nil:
			lookupErr = err
			metrics.MappingLookupFailures.WithLabelValues(string(yearGroup)).Inc()
			r.log.Warn().Err(err).
				Str("year_group", string(yearGroup)).
				Str("label", label).
				Msg("Mapping store lookup failed, falling back to built-in table")
		case mapping != nil:
			return Resolution{Input: label, Name: mapping.CanonicalLabel, Source: SourceOverride}
		}
	}

	if r.catalog != nil {
		if canonical, ok := r.catalog.Lookup(yearGroup, label); ok {
			return Resolution{Input: label, Name: canonical, Source: SourceBuiltin, LookupErr: lookupErr}
		}
	}

	return Resolution{Input: label, Name: label, Source: SourcePassthrough, LookupErr: lookupErr}
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}
