package report

import (
	"context"
	"testing"
	"time"

	"subject-choices/internal/db"
	"subject-choices/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name     string
		previous int
		current  int
		want     float64
	}{
		{"zero to zero", 0, 0, 0},
		{"zero to positive", 0, 7, 100},
		{"growth", 4, 6, 50},
		{"decline", 3, 2, -33.3},
		{"unchanged", 5, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentChange(tt.previous, tt.current))
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 33.3, Percentage(1, 3))
	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 200.0, Percentage(4, 2))
}

type seed struct {
	filename string
	at       time.Time
	yg       model.YearGroup
	owner    string
	students [][]string
	excluded int
}

func newRepo(t *testing.T) db.Repository {
	t.Helper()
	conn, err := db.Open(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))
	return db.NewRepository(conn)
}

// load stores a processed upload with totals counted per slot.
func load(t *testing.T, repo db.Repository, s seed) *model.Upload {
	t.Helper()
	ctx := context.Background()

	upload := &model.Upload{
		Filename: "stored_" + s.filename, OriginalFilename: s.filename, FileType: "csv",
		YearGroup: s.yg, UploadedAt: s.at, OwnerID: s.owner,
	}
	require.NoError(t, repo.CreateUpload(ctx, upload))

	var records []model.StudentChoice
	counts := make(map[string]int)
	for i, subjects := range s.students {
		record := model.StudentChoice{UploadID: upload.ID, Forename: "Student", YearGroup: s.yg, Included: i >= s.excluded}
		copy(record.Choices[:], subjects)
		if record.Included {
			for _, subject := range subjects {
				counts[subject]++
			}
		}
		records = append(records, record)
	}
	require.NoError(t, repo.InsertStudentChoices(ctx, records))

	var totals []model.SubjectTotal
	for subject, count := range counts {
		totals = append(totals, model.SubjectTotal{YearGroup: s.yg, SubjectName: subject, Count: count})
	}
	require.NoError(t, repo.ReplaceSubjectTotals(ctx, upload.ID, totals))

	claimed, err := repo.ClaimUpload(ctx, upload.ID, len(records))
	require.NoError(t, err)
	require.True(t, claimed)
	return upload
}

func TestYearSummary(t *testing.T) {
	repo := newRepo(t)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	older := load(t, repo, seed{
		filename: "S4_2023-24.csv", at: base, yg: model.YearGroupS4, owner: "teacher-1",
		students: [][]string{{"Art", "Music"}, {"Art"}, {"Drama"}},
	})
	newer := load(t, repo, seed{
		filename: "S4_2024-25.csv", at: base.Add(24 * time.Hour), yg: model.YearGroupS4, owner: "teacher-1",
		students: [][]string{{"Drama"}, {"Art", "Music"}, {"Music"}, {"Music", "Art"}},
		excluded: 1,
	})
	load(t, repo, seed{
		filename: "S3_2024-25.csv", at: base, yg: model.YearGroupS3, owner: "teacher-1",
		students: [][]string{{"Latin"}},
	})
	load(t, repo, seed{
		filename: "S4_other.csv", at: base, yg: model.YearGroupS4, owner: "teacher-2",
		students: [][]string{{"Latin"}},
	})

	summary, err := NewReporter(repo).YearSummary(context.Background(), "teacher-1", model.YearGroupS4)
	require.NoError(t, err)
	require.Len(t, summary.Uploads, 2)

	latest := summary.Uploads[0]
	assert.Equal(t, newer.ID, latest.UploadID)
	assert.Equal(t, older.ID, summary.Uploads[1].UploadID)
	assert.Equal(t, 4, latest.TotalStudents)
	assert.Equal(t, 3, latest.IncludedStudents)
	require.NotNil(t, latest.AcademicYear)
	assert.Equal(t, "2024-25", *latest.AcademicYear)
	assert.Equal(t, "Music", latest.Subjects[0].Name)
	assert.Equal(t, 100.0, latest.Subjects[0].Percentage)

	require.Len(t, summary.Comparison, 3)
	rows := make(map[string]model.ComparisonRow)
	for _, row := range summary.Comparison {
		rows[row.Subject] = row
	}
	assert.Equal(t, []string{"Art", "Drama", "Music"}, []string{
		summary.Comparison[0].Subject, summary.Comparison[1].Subject, summary.Comparison[2].Subject,
	})

	art := rows["Art"]
	assert.Equal(t, 2, art.Uploads[0].Count)
	assert.Equal(t, 2, art.Uploads[1].Count)
	require.NotNil(t, art.Change)
	assert.Equal(t, 0.0, *art.Change)

	drama := rows["Drama"]
	assert.Equal(t, 0, drama.Uploads[0].Count)
	assert.Equal(t, -100.0, *drama.Change)

	music := rows["Music"]
	assert.Equal(t, 3, music.Uploads[0].Count)
	assert.Equal(t, 200.0, *music.Change)
}

func TestYearSummarySingleUploadHasNoChange(t *testing.T) {
	repo := newRepo(t)
	load(t, repo, seed{
		filename: "S3.csv", at: time.Now().UTC(), yg: model.YearGroupS3, owner: "teacher-1",
		students: [][]string{{"Art"}},
	})

	summary, err := NewReporter(repo).YearSummary(context.Background(), "teacher-1", model.YearGroupS3)
	require.NoError(t, err)
	require.Len(t, summary.Comparison, 1)
	assert.Nil(t, summary.Comparison[0].Change)
	assert.Nil(t, summary.Uploads[0].AcademicYear)
}

func TestCompareAndDashboard(t *testing.T) {
	repo := newRepo(t)
	at := time.Now().UTC()

	load(t, repo, seed{filename: "a.csv", at: at, yg: model.YearGroupS3, owner: "teacher-1",
		students: [][]string{{"Art"}, {"Art", "Music"}}})
	load(t, repo, seed{filename: "b.csv", at: at, yg: model.YearGroupS4, owner: "teacher-1",
		students: [][]string{{"Art"}}})
	load(t, repo, seed{filename: "c.csv", at: at, yg: model.YearGroupS4, owner: "teacher-2",
		students: [][]string{{"Art"}}})

	pending := &model.Upload{Filename: "p.csv", OriginalFilename: "p.csv", FileType: "csv",
		YearGroup: model.YearGroupS56, OwnerID: "teacher-1"}
	require.NoError(t, repo.CreateUpload(context.Background(), pending))

	reporter := NewReporter(repo)

	rows, err := reporter.Compare(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Art", rows[0].Subject)
	assert.Equal(t, map[model.YearGroup]int{model.YearGroupS3: 2, model.YearGroupS4: 1, model.YearGroupS56: 0}, rows[0].Counts)
	assert.Equal(t, "Music", rows[1].Subject)

	dashboard, err := reporter.Dashboard(context.Background(), "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 3, dashboard.TotalUploads)
	assert.Equal(t, 2, dashboard.ProcessedUploads)
	require.Len(t, dashboard.SubjectStats, 2)
	assert.Equal(t, model.YearGroupS3, dashboard.SubjectStats[0].YearGroup)
	assert.Equal(t, 2, dashboard.SubjectStats[0].SubjectCount)
	assert.Equal(t, 3, dashboard.SubjectStats[0].TotalChoices)
}
