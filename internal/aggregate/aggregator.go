package aggregate

import (
	"context"
	"math"
	"sort"
	"time"

	"subject-choices/internal/db"
	"subject-choices/internal/logger"
	"subject-choices/internal/metrics"
	"subject-choices/internal/model"

	"github.com/rs/zerolog"
)

type Aggregator struct {
	repo db.Repository
	log  zerolog.Logger
}

func NewAggregator(repo db.Repository) *Aggregator {
	return &Aggregator{
		repo: repo,
		log:  logger.Get().With().Str("component", "aggregator").Logger(),
	}
}

// Count tallies every non-empty slot of every included record. A subject listed
// in two slots of the same record counts twice.
func Count(records []model.StudentChoice) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		if !records[i].Included {
			continue
		}
		for _, subject := range records[i].Subjects() {
			counts[subject]++
		}
	}
	return counts
}

// Recompute replaces the upload's subject totals in its own transaction.
// On failure the previous totals are left untouched.
func (a *Aggregator) Recompute(ctx context.Context, uploadID int64) (map[string]int, error) {
	var counts map[string]int
	err := a.repo.WithTx(ctx, func(q db.Queries) error {
		upload, err := q.GetUpload(ctx, uploadID)
		if err != nil {
			return err
		}

		counts, err = a.RecomputeTx(ctx, q, upload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// RecomputeTx does the work of Recompute inside a caller-owned transaction.
func (a *Aggregator) RecomputeTx(ctx context.Context, q db.Queries, upload *model.Upload) (map[string]int, error) {
	start := time.Now()
	defer func() {
		metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	records, err := q.ListStudentChoices(ctx, upload.ID)
	if err != nil {
		return nil, err
	}

	var academicYear *string
	if len(records) > 0 {
		academicYear = records[0].AcademicYear
	}

	counts := Count(records)
	totals := make([]model.SubjectTotal, 0, len(counts))
	for subject, count := range counts {
		totals = append(totals, model.SubjectTotal{
			UploadID:     upload.ID,
			YearGroup:    upload.YearGroup,
			SubjectName:  subject,
			Count:        count,
			AcademicYear: academicYear,
		})
	}
	SortTotals(totals)

	if err := q.ReplaceSubjectTotals(ctx, upload.ID, totals); err != nil {
		return nil, err
	}

	a.log.Debug().
		Int64("upload_id", upload.ID).
		Int("subjects", len(totals)).
		Msg("Recomputed subject totals")

	return counts, nil
}

// SortTotals orders by count descending, then subject name.
func SortTotals(totals []model.SubjectTotal) {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Count != totals[j].Count {
			return totals[i].Count > totals[j].Count
		}
		return totals[i].SubjectName < totals[j].SubjectName
	})
}

// Summarise computes headline statistics over totals already ordered by SortTotals.
func Summarise(totals []model.SubjectTotal) model.SummaryStats {
	var stats model.SummaryStats
	if len(totals) == 0 {
		return stats
	}

	for _, total := range totals {
		stats.TotalChoices += total.Count
	}
	stats.UniqueSubjects = len(totals)

	most := totals[0]
	least := totals[len(totals)-1]
	stats.MostPopular = &most
	stats.LeastPopular = &least
	stats.AverageChoices = Round(float64(stats.TotalChoices)/float64(stats.UniqueSubjects), 2)

	return stats
}

// Coincidence counts, for each pair of subjects, the included students who chose both.
// The diagonal holds the number of students who chose the subject at all.
func Coincidence(uploadID int64, records []model.StudentChoice) model.CoincidenceMatrix {
	var students []map[string]bool
	all := make(map[string]bool)
	for i := range records {
		if !records[i].Included {
			continue
		}
		chosen := make(map[string]bool)
		for _, subject := range records[i].Subjects() {
			chosen[subject] = true
			all[subject] = true
		}
		students = append(students, chosen)
	}

	subjects := make([]string, 0, len(all))
	for subject := range all {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	matrix := model.CoincidenceMatrix{
		UploadID:      uploadID,
		Subjects:      subjects,
		Pairs:         make(map[string]map[string]int, len(subjects)),
		SubjectTotals: make(map[string]int, len(subjects)),
		TotalStudents: len(students),
	}
	for _, s1 := range subjects {
		row := make(map[string]int, len(subjects))
		for _, s2 := range subjects {
			row[s2] = 0
		}
		matrix.Pairs[s1] = row
		matrix.SubjectTotals[s1] = 0
	}

	for _, chosen := range students {
		for s1 := range chosen {
			matrix.SubjectTotals[s1]++
			for s2 := range chosen {
				matrix.Pairs[s1][s2]++
			}
		}
	}

	return matrix
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
