package review

import (
	"context"
	"sort"
	"strings"

	"subject-choices/internal/db"
	"subject-choices/internal/logger"
	"subject-choices/internal/model"
	"subject-choices/internal/spreadsheet"
	"subject-choices/internal/storage"
	"subject-choices/internal/subjects"
	"subject-choices/pkg/errors"

	"github.com/rs/zerolog"
)

type LabelMapping struct {
	Original  string `json:"original"`
	Canonical string `json:"canonical"`
}

type Result struct {
	UploadID  int64           `json:"upload_id"`
	YearGroup model.YearGroup `json:"year_group"`
	Unmapped  []string        `json:"unmapped"`
	Mapped    []LabelMapping  `json:"mapped"`
}

// NeedsReview is false when every label already has a mapping, in which case
// the caller can go straight to ingestion.
func (r *Result) NeedsReview() bool {
	return len(r.Unmapped) > 0
}

type Flow struct {
	store    storage.Storage
	parser   *spreadsheet.Parser
	resolver *subjects.Resolver
	repo     db.Repository
	log      zerolog.Logger
}

func NewFlow(store storage.Storage, parser *spreadsheet.Parser, resolver *subjects.Resolver, repo db.Repository) *Flow {
	return &Flow{
		store:    store,
		parser:   parser,
		resolver: resolver,
		repo:     repo,
		log:      logger.Get().With().Str("component", "mapping_review").Logger(),
	}
}

// ReadRows re-reads and parses an upload's stored file without ingesting it.
func (f *Flow) ReadRows(ctx context.Context, upload *model.Upload) ([]model.ChoiceRow, error) {
	rc, err := f.store.Download(ctx, upload.Filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return f.parser.Parse(ctx, upload.Filename, rc, upload.YearGroup)
}

// DistinctLabels collects the trimmed, non-empty choice values in sorted order.
func DistinctLabels(rows []model.ChoiceRow) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, choice := range row.Choices {
			if label := strings.TrimSpace(choice); label != "" {
				seen[label] = true
			}
		}
	}

	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (f *Flow) FindUnmapped(ctx context.Context, upload *model.Upload) (*Result, error) {
	rows, err := f.ReadRows(ctx, upload)
	if err != nil {
		return nil, err
	}
	return f.Classify(ctx, upload, rows), nil
}

// Classify splits the labels in rows into those resolution renames and those
// that come out unchanged, whichever tier matched them.
func (f *Flow) Classify(ctx context.Context, upload *model.Upload, rows []model.ChoiceRow) *Result {
	result := &Result{
		UploadID:  upload.ID,
		YearGroup: upload.YearGroup,
		Unmapped:  []string{},
		Mapped:    []LabelMapping{},
	}

	for _, label := range DistinctLabels(rows) {
		res := f.resolver.Resolve(ctx, label, upload.YearGroup)
		if res.Mapped() {
			result.Mapped = append(result.Mapped, LabelMapping{Original: label, Canonical: res.Name})
		} else {
			result.Unmapped = append(result.Unmapped, label)
		}
	}

	f.log.Debug().
		Int64("upload_id", upload.ID).
		Int("mapped", len(result.Mapped)).
		Int("unmapped", len(result.Unmapped)).
		Msg("Classified subject labels")

	return result
}

// Confirm upserts operator-confirmed mappings for the upload's year group.
// Blank raw or canonical labels are skipped. Any failure is returned as a
// MappingPersistError and nothing is saved.
func (f *Flow) Confirm(ctx context.Context, upload *model.Upload, mappings map[string]string) (int, error) {
	pending := make([]model.SubjectMapping, 0, len(mappings))
	for raw, canonical := range mappings {
		raw, canonical = strings.TrimSpace(raw), strings.TrimSpace(canonical)
		if raw == "" || canonical == "" {
			continue
		}
		pending = append(pending, model.SubjectMapping{
			YearGroup:      upload.YearGroup,
			RawLabel:       raw,
			CanonicalLabel: canonical,
		})
	}
	if len(pending) == 0 {
		return 0, nil
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].RawLabel < pending[j].RawLabel })

	err := f.repo.WithTx(ctx, func(q db.Queries) error {
		for i := range pending {
			if err := q.UpsertMapping(ctx, &pending[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.MappingPersistError{
			YearGroup: string(upload.YearGroup),
			Count:     len(pending),
			Err:       err,
		}
	}

	f.log.Info().
		Int64("upload_id", upload.ID).
		Str("year_group", string(upload.YearGroup)).
		Int("saved", len(pending)).
		Msg("Saved subject mappings")

	return len(pending), nil
}
