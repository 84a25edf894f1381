package report

import (
	"context"
	"sort"

	"subject-choices/internal/aggregate"
	"subject-choices/internal/db"
	"subject-choices/internal/ingest"
	"subject-choices/internal/logger"
	"subject-choices/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const loadConcurrency = 4

// PercentChange is the period-over-period change, rounded to one decimal place.
// From zero it is 0% when the count stays zero and 100% when it grows.
func PercentChange(previous, current int) float64 {
	if previous == 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	return aggregate.Round(float64(current-previous)/float64(previous)*100, 1)
}

// Percentage is count as a share of total, rounded to one decimal place. A zero total gives 0.
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return aggregate.Round(float64(count)/float64(total)*100, 1)
}

type Reporter struct {
	repo db.Repository
	log  zerolog.Logger
}

func NewReporter(repo db.Repository) *Reporter {
	return &Reporter{
		repo: repo,
		log:  logger.Get().With().Str("component", "reporter").Logger(),
	}
}

// YearSummary lists the owner's processed uploads for a year group, newest
// first, and compares subject counts across them.
func (r *Reporter) YearSummary(ctx context.Context, ownerID string, yearGroup model.YearGroup) (*model.YearSummary, error) {
	uploads, err := r.repo.ListProcessedUploads(ctx, ownerID, yearGroup)
	if err != nil {
		return nil, err
	}

	snapshots := make([]model.UploadSnapshot, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i := range uploads {
		i := i
		g.Go(func() error {
			snapshot, err := r.snapshot(gctx, &uploads[i])
			if err != nil {
				return err
			}
			snapshots[i] = *snapshot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.YearSummary{
		YearGroup:  yearGroup,
		Uploads:    snapshots,
		Comparison: compareSnapshots(snapshots),
	}, nil
}

func (r *Reporter) snapshot(ctx context.Context, upload *model.Upload) (*model.UploadSnapshot, error) {
	included, err := r.repo.CountIncludedStudents(ctx, upload.ID)
	if err != nil {
		return nil, err
	}

	totals, err := r.repo.ListSubjectTotals(ctx, upload.ID)
	if err != nil {
		return nil, err
	}

	snapshot := &model.UploadSnapshot{
		UploadID:         upload.ID,
		Filename:         upload.OriginalFilename,
		UploadedAt:       upload.UploadedAt,
		AcademicYear:     ingest.ExtractAcademicYear(upload.OriginalFilename),
		IncludedStudents: included,
		Subjects:         make([]model.SubjectShare, 0, len(totals)),
	}
	if upload.RecordCount != nil {
		snapshot.TotalStudents = *upload.RecordCount
	}

	for _, total := range totals {
		snapshot.Subjects = append(snapshot.Subjects, model.SubjectShare{
			Name:       total.SubjectName,
			Count:      total.Count,
			Percentage: Percentage(total.Count, included),
		})
	}
	return snapshot, nil
}

// compareSnapshots builds one row per subject over the sorted union of subjects.
// Change compares the two newest snapshots.
func compareSnapshots(snapshots []model.UploadSnapshot) []model.ComparisonRow {
	all := make(map[string]bool)
	for _, s := range snapshots {
		for _, subject := range s.Subjects {
			all[subject.Name] = true
		}
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]model.ComparisonRow, 0, len(names))
	for _, name := range names {
		row := model.ComparisonRow{
			Subject: name,
			Uploads: make([]model.ComparisonCell, len(snapshots)),
		}
		for i, s := range snapshots {
			for _, subject := range s.Subjects {
				if subject.Name == name {
					row.Uploads[i] = model.ComparisonCell{Count: subject.Count, Percentage: subject.Percentage}
					break
				}
			}
		}
		if len(snapshots) >= 2 {
			change := PercentChange(row.Uploads[1].Count, row.Uploads[0].Count)
			row.Change = &change
		}
		rows = append(rows, row)
	}
	return rows
}

// Compare sums each subject's counts per year group over the owner's uploads.
func (r *Reporter) Compare(ctx context.Context, ownerID string) ([]model.SubjectComparison, error) {
	sums, err := r.repo.SumSubjectTotalsByYearGroup(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	rows := []model.SubjectComparison{}
	index := make(map[string]int)
	for _, sum := range sums {
		i, ok := index[sum.SubjectName]
		if !ok {
			counts := make(map[model.YearGroup]int, len(model.YearGroups))
			for _, yg := range model.YearGroups {
				counts[yg] = 0
			}
			rows = append(rows, model.SubjectComparison{Subject: sum.SubjectName, Counts: counts})
			i = len(rows) - 1
			index[sum.SubjectName] = i
		}
		rows[i].Counts[sum.YearGroup] = sum.Total
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Subject < rows[j].Subject })
	return rows, nil
}

func (r *Reporter) Dashboard(ctx context.Context, ownerID string) (*model.Dashboard, error) {
	uploads, err := r.repo.ListUploads(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats, err := r.repo.YearGroupStats(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	dashboard := &model.Dashboard{
		Uploads:      uploads,
		TotalUploads: len(uploads),
		SubjectStats: stats,
	}
	if dashboard.Uploads == nil {
		dashboard.Uploads = []model.Upload{}
	}
	if dashboard.SubjectStats == nil {
		dashboard.SubjectStats = []model.YearGroupStat{}
	}
	for _, upload := range uploads {
		if upload.Processed {
			dashboard.ProcessedUploads++
		}
	}

	return dashboard, nil
}
