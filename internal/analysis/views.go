package analysis

import (
	"context"
	"strings"

	"subject-choices/internal/aggregate"
	"subject-choices/internal/auth"
	"subject-choices/internal/model"
	"subject-choices/internal/subjects"
	"subject-choices/pkg/errors"

	"github.com/go-playground/validator/v10"
)

func (s *Service) UploadDetail(ctx context.Context, actor auth.Actor, uploadID int64) (*model.UploadDetail, error) {
	upload, err := s.GetUpload(ctx, actor, uploadID)
	if err != nil {
		return nil, err
	}

	students, err := s.repo.ListStudentChoices(ctx, upload.ID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.ListSubjectTotals(ctx, upload.ID)
	if err != nil {
		return nil, err
	}

	detail := &model.UploadDetail{
		Upload:        *upload,
		Students:      students,
		Totals:        totals,
		TotalStudents: len(students),
	}
	if detail.Students == nil {
		detail.Students = []model.StudentChoice{}
	}
	if detail.Totals == nil {
		detail.Totals = []model.SubjectTotal{}
	}
	for _, student := range students {
		if student.Included {
			detail.IncludedStudents++
		}
	}
	detail.ExcludedStudents = detail.TotalStudents - detail.IncludedStudents
	if len(students) > 0 {
		detail.AcademicYear = students[0].AcademicYear
	}

	return detail, nil
}

type TotalsView struct {
	Totals []model.SubjectTotal `json:"totals"`
	Stats  model.SummaryStats   `json:"stats"`
}

func (s *Service) Totals(ctx context.Context, actor auth.Actor, uploadID int64) (*TotalsView, error) {
	if _, err := s.GetUpload(ctx, actor, uploadID); err != nil {
		return nil, err
	}

	totals, err := s.repo.ListSubjectTotals(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = []model.SubjectTotal{}
	}
	return &TotalsView{Totals: totals, Stats: aggregate.Summarise(totals)}, nil
}

func (s *Service) Coincidence(ctx context.Context, actor auth.Actor, uploadID int64) (*model.CoincidenceMatrix, error) {
	if _, err := s.GetUpload(ctx, actor, uploadID); err != nil {
		return nil, err
	}

	records, err := s.repo.ListIncludedStudentChoices(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	matrix := aggregate.Coincidence(uploadID, records)
	return &matrix, nil
}

func (s *Service) YearSummary(ctx context.Context, actor auth.Actor, yearGroup string) (*model.YearSummary, error) {
	yg, err := model.ParseYearGroup(yearGroup)
	if err != nil {
		return nil, err
	}
	return s.reporter.YearSummary(ctx, actor.ID, yg)
}

func (s *Service) Compare(ctx context.Context, actor auth.Actor) ([]model.SubjectComparison, error) {
	rows, err := s.reporter.Compare(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.SubjectComparison{}
	}
	return rows, nil
}

func (s *Service) Dashboard(ctx context.Context, actor auth.Actor) (*model.Dashboard, error) {
	return s.reporter.Dashboard(ctx, actor.ID)
}

// ListMappings returns every mapping when yearGroup is empty.
func (s *Service) ListMappings(ctx context.Context, yearGroup string) ([]model.SubjectMapping, error) {
	var yg model.YearGroup
	if strings.TrimSpace(yearGroup) != "" {
		parsed, err := model.ParseYearGroup(yearGroup)
		if err != nil {
			return nil, err
		}
		yg = parsed
	}

	mappings, err := s.repo.ListMappings(ctx, yg)
	if err != nil {
		return nil, err
	}
	if mappings == nil {
		mappings = []model.SubjectMapping{}
	}
	return mappings, nil
}

type MappingInput struct {
	YearGroup      string `json:"year_group" binding:"required"`
	RawLabel       string `json:"raw_label" binding:"required"`
	CanonicalLabel string `json:"canonical_label" binding:"required"`
}

// SaveMapping adds a mapping or updates the canonical label of an existing one.
func (s *Service) SaveMapping(ctx context.Context, input MappingInput) (*model.SubjectMapping, error) {
	yg, err := model.ParseYearGroup(input.YearGroup)
	if err != nil {
		return nil, err
	}

	mapping := &model.SubjectMapping{
		YearGroup:      yg,
		RawLabel:       strings.TrimSpace(input.RawLabel),
		CanonicalLabel: strings.TrimSpace(input.CanonicalLabel),
	}
	if err := s.validate.StructCtx(ctx, mapping); err != nil {
		return nil, mappingValidationError(err)
	}

	if err := s.repo.UpsertMapping(ctx, mapping); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("year_group", string(mapping.YearGroup)).
		Str("raw_label", mapping.RawLabel).
		Str("canonical_label", mapping.CanonicalLabel).
		Msg("Subject mapping saved")

	return mapping, nil
}

func mappingValidationError(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	message := "is required"
	if fe.Tag() == "max" {
		message = "must be at most " + fe.Param() + " characters"
	}
	return errors.ValidationError{Field: fe.Field(), Value: fe.Value(), Message: message}
}

func (s *Service) DeleteMapping(ctx context.Context, mappingID int64) error {
	if err := s.repo.DeleteMapping(ctx, mappingID); err != nil {
		return err
	}
	s.log.Info().Int64("mapping_id", mappingID).Msg("Subject mapping deleted")
	return nil
}

func (s *Service) BuiltinMappings(yearGroup string) ([]subjects.Entry, error) {
	yg, err := model.ParseYearGroup(yearGroup)
	if err != nil {
		return nil, err
	}
	return s.catalog.Entries(yg), nil
}
