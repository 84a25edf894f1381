package ingest

import (
	"context"
	"regexp"
	"strings"

	"subject-choices/internal/aggregate"
	"subject-choices/internal/db"
	"subject-choices/internal/logger"
	"subject-choices/internal/metrics"
	"subject-choices/internal/model"
	"subject-choices/internal/subjects"
	"subject-choices/pkg/errors"

	"github.com/rs/zerolog"
)

var academicYearPattern = regexp.MustCompile(`20\d{2}[-_]?\d{2}`)

// ExtractAcademicYear finds a year such as 2024-25, 2024_25 or 202425 in a
// filename and returns it as 2024-25. It returns nil when there is none.
func ExtractAcademicYear(filename string) *string {
	match := academicYearPattern.FindString(filename)
	if match == "" {
		return nil
	}

	var year string
	if len(match) == 6 {
		year = match[:4] + "-" + match[4:]
	} else {
		year = strings.ReplaceAll(match, "_", "-")
	}
	return &year
}

type Ingestor struct {
	repo       db.Repository
	resolver   *subjects.Resolver
	aggregator *aggregate.Aggregator
	log        zerolog.Logger
}

func NewIngestor(repo db.Repository, resolver *subjects.Resolver, aggregator *aggregate.Aggregator) *Ingestor {
	return &Ingestor{
		repo:       repo,
		resolver:   resolver,
		aggregator: aggregator,
		log:        logger.Get().With().Str("component", "ingestor").Logger(),
	}
}

// Ingest stores one record per row and computes the upload's totals. An upload
// can be ingested once; the processed flag is claimed in the same transaction
// as the inserts, so a failed ingestion leaves the upload unprocessed.
func (i *Ingestor) Ingest(ctx context.Context, rows []model.ChoiceRow, upload *model.Upload) (int, error) {
	if upload.Processed {
		return 0, errors.AlreadyProcessedError{UploadID: upload.ID}
	}

	log := i.log.With().
		Int64("upload_id", upload.ID).
		Str("year_group", string(upload.YearGroup)).
		Logger()

	records := i.buildRecords(ctx, rows, upload, log)

	err := i.repo.WithTx(ctx, func(q db.Queries) error {
		claimed, err := q.ClaimUpload(ctx, upload.ID, len(records))
		if err != nil {
			return errors.NewStorageError("claim upload", err)
		}
		if !claimed {
			return errors.AlreadyProcessedError{UploadID: upload.ID}
		}

		if err := q.InsertStudentChoices(ctx, records); err != nil {
			return errors.NewStorageError("insert student choices", err)
		}

		if _, err := i.aggregator.RecomputeTx(ctx, q, upload); err != nil {
			return errors.NewStorageError("recompute totals", err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Ingestion failed")
		return 0, err
	}

	count := len(records)
	upload.Processed = true
	upload.RecordCount = &count

	metrics.UploadsIngested.WithLabelValues(string(upload.YearGroup)).Inc()
	metrics.StudentRecordsIngested.WithLabelValues(string(upload.YearGroup)).Add(float64(count))

	log.Info().Int("records", count).Msg("Upload ingested")
	return count, nil
}

// buildRecords resolves every choice slot before any write happens.
// Identical labels within one file are resolved once.
func (i *Ingestor) buildRecords(ctx context.Context, rows []model.ChoiceRow, upload *model.Upload, log zerolog.Logger) []model.StudentChoice {
	academicYear := ExtractAcademicYear(upload.OriginalFilename)
	resolved := make(map[string]string)
	lookupFailures := 0

	records := make([]model.StudentChoice, 0, len(rows))
	for _, row := range rows {
		record := model.StudentChoice{
			UploadID:     upload.ID,
			Forename:     row.Forename,
			Surname:      row.Surname,
			RegClass:     row.RegClass,
			YearGroup:    upload.YearGroup,
			AcademicYear: academicYear,
			Included:     true,
		}

		for slot, raw := range row.Choices {
			label := strings.TrimSpace(raw)
			if label == "" {
				continue
			}

			name, ok := resolved[label]
			if !ok {
				res := i.resolver.Resolve(ctx, label, upload.YearGroup)
				if res.LookupErr != nil {
					lookupFailures++
				}
				name = res.Name
				resolved[label] = name
			}
			record.Choices[slot] = name
		}

		records = append(records, record)
	}

	if lookupFailures > 0 {
		log.Warn().Int("labels", lookupFailures).Msg("Mapping store unavailable for some labels, built-in names used")
	}

	return records
}
