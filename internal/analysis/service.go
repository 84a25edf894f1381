package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"subject-choices/internal/aggregate"
	"subject-choices/internal/auth"
	"subject-choices/internal/config"
	"subject-choices/internal/db"
	"subject-choices/internal/ingest"
	"subject-choices/internal/logger"
	"subject-choices/internal/model"
	"subject-choices/internal/report"
	"subject-choices/internal/review"
	"subject-choices/internal/spreadsheet"
	"subject-choices/internal/storage"
	"subject-choices/internal/subjects"
	"subject-choices/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the application layer: every operation checks the actor owns
// the upload it touches.
type Service struct {
	uploads    config.UploadsConfig
	repo       db.Repository
	store      storage.Storage
	parser     *spreadsheet.Parser
	catalog    *subjects.Catalog
	ingestor   *ingest.Ingestor
	aggregator *aggregate.Aggregator
	review     *review.Flow
	reporter   *report.Reporter
	validate   *validator.Validate
	log        zerolog.Logger
}

func NewService(cfg *config.Config, repo db.Repository, store storage.Storage, catalog *subjects.Catalog) *Service {
	parser := spreadsheet.NewParser()
	resolver := subjects.NewResolver(repo, catalog)
	aggregator := aggregate.NewAggregator(repo)

	return &Service{
		uploads:    cfg.Uploads,
		repo:       repo,
		store:      store,
		parser:     parser,
		catalog:    catalog,
		ingestor:   ingest.NewIngestor(repo, resolver, aggregator),
		aggregator: aggregator,
		review:     review.NewFlow(store, parser, resolver, repo),
		reporter:   report.NewReporter(repo),
		validate:   validator.New(),
		log:        logger.Get().With().Str("component", "analysis_service").Logger(),
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// sanitiseFilename keeps ASCII letters, digits, dot, dash and underscore.
func sanitiseFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, "._")
}

// StoredFilename builds a unique storage key that keeps the original name readable.
func StoredFilename(original string, now time.Time) string {
	name := sanitiseFilename(original)
	if name == "" {
		name = "upload" + strings.ToLower(filepath.Ext(original))
	}
	return fmt.Sprintf("%s_%s_%s", now.UTC().Format("20060102_150405"), uuid.NewString()[:8], name)
}

func (s *Service) fileType(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !s.allowed(ext) {
		return "", errors.ErrUnsupportedFileType
	}
	return ext, nil
}

func (s *Service) allowed(ext string) bool {
	for _, allowed := range s.uploads.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func (s *Service) readContent(content io.Reader) ([]byte, error) {
	limit := s.uploads.MaxBytes
	data, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		return nil, errors.NewStorageError("read upload", err)
	}
	if int64(len(data)) > limit {
		return nil, errors.ValidationError{
			Field:   "file",
			Value:   fmt.Sprintf("%d+ bytes", limit),
			Message: fmt.Sprintf("must be at most %d bytes", limit),
		}
	}
	return data, nil
}

type intake struct {
	filename  string
	fileType  string
	yearGroup model.YearGroup
	data      []byte
}

func (s *Service) checkIntake(filename string, content io.Reader, yearGroup string) (*intake, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, errors.ValidationError{Field: "file", Value: filename, Message: "no file selected"}
	}

	fileType, err := s.fileType(filename)
	if err != nil {
		return nil, err
	}

	yg, err := model.ParseYearGroup(yearGroup)
	if err != nil {
		return nil, err
	}

	data, err := s.readContent(content)
	if err != nil {
		return nil, err
	}

	return &intake{filename: filename, fileType: fileType, yearGroup: yg, data: data}, nil
}

func (s *Service) storeUpload(ctx context.Context, actor auth.Actor, in *intake) (*model.Upload, error) {
	upload := &model.Upload{
		Filename:         StoredFilename(in.filename, time.Now()),
		OriginalFilename: in.filename,
		FileType:         in.fileType,
		YearGroup:        in.yearGroup,
		OwnerID:          actor.ID,
	}

	if err := s.store.Upload(ctx, upload.Filename, bytes.NewReader(in.data)); err != nil {
		return nil, err
	}

	if err := s.repo.CreateUpload(ctx, upload); err != nil {
		if delErr := s.store.Delete(ctx, upload.Filename); delErr != nil {
			s.log.Warn().Err(delErr).Str("filename", upload.Filename).Msg("Failed to remove orphaned file")
		}
		return nil, errors.NewStorageError("create upload", err)
	}

	s.log.Info().
		Int64("upload_id", upload.ID).
		Str("owner_id", actor.ID).
		Str("year_group", string(upload.YearGroup)).
		Str("filename", upload.OriginalFilename).
		Msg("File uploaded")

	return upload, nil
}

// Upload stores a file and its metadata without ingesting it.
func (s *Service) Upload(ctx context.Context, actor auth.Actor, filename string, content io.Reader, yearGroup string) (*model.Upload, error) {
	in, err := s.checkIntake(filename, content, yearGroup)
	if err != nil {
		return nil, err
	}
	return s.storeUpload(ctx, actor, in)
}

// Import uploads and ingests in one step, skipping the review gate. The file is
// parsed before anything is stored, so a file with a bad layout leaves no trace.
func (s *Service) Import(ctx context.Context, actor auth.Actor, filename string, content io.Reader, yearGroup string) (*model.ImportResult, error) {
	in, err := s.checkIntake(filename, content, yearGroup)
	if err != nil {
		return nil, err
	}

	rows, err := s.parser.Parse(ctx, in.filename, bytes.NewReader(in.data), in.yearGroup)
	if err != nil {
		return nil, err
	}

	upload, err := s.storeUpload(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	count, err := s.ingestor.Ingest(ctx, rows, upload)
	if err != nil {
		return nil, err
	}
	return &model.ImportResult{UploadID: upload.ID, RecordCount: count}, nil
}

// GetUpload loads an upload the actor owns.
func (s *Service) GetUpload(ctx context.Context, actor auth.Actor, uploadID int64) (*model.Upload, error) {
	upload, err := s.repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwner(actor, upload); err != nil {
		return nil, err
	}
	return upload, nil
}

func (s *Service) ListUploads(ctx context.Context, actor auth.Actor) ([]model.Upload, error) {
	uploads, err := s.repo.ListUploads(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		uploads = []model.Upload{}
	}
	return uploads, nil
}

// ProcessOutcome carries either the labels awaiting review or the ingestion result.
type ProcessOutcome struct {
	Review *review.Result      `json:"review,omitempty"`
	Result *model.ImportResult `json:"result,omitempty"`
	// Warning is set when confirmed mappings could not be saved.
	Warning string `json:"warning,omitempty"`
}

// Process ingests a stored upload. Unless skipReview is set, it stops and
// returns the review result when some labels have no mapping.
func (s *Service) Process(ctx context.Context, actor auth.Actor, uploadID int64, skipReview bool) (*ProcessOutcome, error) {
	upload, err := s.GetUpload(ctx, actor, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Processed {
		return nil, errors.AlreadyProcessedError{UploadID: upload.ID}
	}

	rows, err := s.review.ReadRows(ctx, upload)
	if err != nil {
		return nil, err
	}

	if !skipReview {
		if result := s.review.Classify(ctx, upload, rows); result.NeedsReview() {
			return &ProcessOutcome{Review: result}, nil
		}
	}

	count, err := s.ingestor.Ingest(ctx, rows, upload)
	if err != nil {
		return nil, err
	}
	return &ProcessOutcome{Result: &model.ImportResult{UploadID: upload.ID, RecordCount: count}}, nil
}

func (s *Service) FindUnmapped(ctx context.Context, actor auth.Actor, uploadID int64) (*review.Result, error) {
	upload, err := s.GetUpload(ctx, actor, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Processed {
		return nil, errors.AlreadyProcessedError{UploadID: upload.ID}
	}
	return s.review.FindUnmapped(ctx, upload)
}

// ConfirmAndProcess optionally saves the operator's mappings, then ingests.
// A failure to save mappings is reported as a warning and does not stop ingestion.
func (s *Service) ConfirmAndProcess(ctx context.Context, actor auth.Actor, uploadID int64, mappings map[string]string, save bool) (*ProcessOutcome, error) {
	upload, err := s.GetUpload(ctx, actor, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Processed {
		return nil, errors.AlreadyProcessedError{UploadID: upload.ID}
	}

	var warning string
	if save && len(mappings) > 0 {
		if _, err := s.review.Confirm(ctx, upload, mappings); err != nil {
			var persistErr errors.MappingPersistError
			if !errors.As(err, &persistErr) {
				return nil, err
			}
			s.log.Warn().Err(err).Int64("upload_id", upload.ID).Msg("Continuing ingestion without saved mappings")
			warning = persistErr.Error()
		}
	}

	outcome, err := s.Process(ctx, actor, uploadID, true)
	if err != nil {
		return nil, err
	}
	outcome.Warning = warning
	return outcome, nil
}

func (s *Service) Recompute(ctx context.Context, actor auth.Actor, uploadID int64) (map[string]int, error) {
	if _, err := s.GetUpload(ctx, actor, uploadID); err != nil {
		return nil, err
	}
	return s.aggregator.Recompute(ctx, uploadID)
}

type ToggleResult struct {
	RecordID int64          `json:"record_id"`
	Included bool           `json:"included"`
	Totals   map[string]int `json:"totals"`
}

// ToggleInclusion flips one record's inclusion flag and recomputes its upload's
// totals in the same transaction.
func (s *Service) ToggleInclusion(ctx context.Context, actor auth.Actor, recordID int64) (*ToggleResult, error) {
	result := &ToggleResult{RecordID: recordID}

	err := s.repo.WithTx(ctx, func(q db.Queries) error {
		record, err := q.GetStudentChoice(ctx, recordID)
		if err != nil {
			return err
		}

		upload, err := q.GetUpload(ctx, record.UploadID)
		if err != nil {
			return err
		}
		if err := auth.RequireOwner(actor, upload); err != nil {
			return err
		}

		result.Included = !record.Included
		if err := q.SetStudentIncluded(ctx, recordID, result.Included); err != nil {
			return err
		}

		result.Totals, err = s.aggregator.RecomputeTx(ctx, q, upload)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("record_id", recordID).
		Bool("included", result.Included).
		Msg("Student inclusion toggled")

	return result, nil
}

// DeleteUpload removes the upload with its records and totals, then its stored file.
func (s *Service) DeleteUpload(ctx context.Context, actor auth.Actor, uploadID int64) error {
	upload, err := s.GetUpload(ctx, actor, uploadID)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(q db.Queries) error {
		return q.DeleteUpload(ctx, upload.ID)
	})
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, upload.Filename); err != nil {
		s.log.Warn().Err(err).Int64("upload_id", upload.ID).Msg("Failed to delete stored file")
	}

	s.log.Info().Int64("upload_id", upload.ID).Msg("Upload deleted")
	return nil
}
