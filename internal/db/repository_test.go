package db

import (
	"context"
	"testing"

	"subject-choices/internal/model"
	"subject-choices/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()

	conn, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, Migrate(context.Background(), conn))
	return NewRepository(conn)
}

func createUpload(t *testing.T, repo Repository, owner string, yg model.YearGroup) *model.Upload {
	t.Helper()

	upload := &model.Upload{
		Filename:         "20240101_120000_abcd1234_choices.csv",
		OriginalFilename: "choices.csv",
		FileType:         "csv",
		YearGroup:        yg,
		OwnerID:          owner,
	}
	require.NoError(t, repo.CreateUpload(context.Background(), upload))
	require.NotZero(t, upload.ID)
	return upload
}

func TestCreateAndGetUpload(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created := createUpload(t, repo, "teacher-1", model.YearGroupS4)

	got, err := repo.GetUpload(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "choices.csv", got.OriginalFilename)
	assert.Equal(t, model.YearGroupS4, got.YearGroup)
	assert.False(t, got.Processed)
	assert.Nil(t, got.RecordCount)

	_, err = repo.GetUpload(ctx, created.ID+100)
	assert.ErrorIs(t, err, errors.ErrUploadNotFound)
}

func TestClaimUploadOnlyOnce(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	upload := createUpload(t, repo, "teacher-1", model.YearGroupS3)

	claimed, err := repo.ClaimUpload(ctx, upload.ID, 3)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimUpload(ctx, upload.ID, 5)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	require.NotNil(t, got.RecordCount)
	assert.Equal(t, 3, *got.RecordCount)
}

func TestStudentChoicesRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	upload := createUpload(t, repo, "teacher-1", model.YearGroupS4)
	year := "2024-25"

	records := []model.StudentChoice{
		{UploadID: upload.ID, Forename: "Zoe", Surname: "Young", YearGroup: model.YearGroupS4, AcademicYear: &year,
			Choices: [model.ChoiceSlots]string{"Art", "", "Music"}, Included: true},
		{UploadID: upload.ID, Forename: "Adam", Surname: "Brown", RegClass: "4B", YearGroup: model.YearGroupS4,
			Choices: [model.ChoiceSlots]string{"History"}, Included: true},
	}
	require.NoError(t, repo.InsertStudentChoices(ctx, records))

	listed, err := repo.ListStudentChoices(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Brown", listed[0].Surname)
	assert.Equal(t, "4B", listed[0].RegClass)
	assert.Nil(t, listed[0].AcademicYear)
	assert.Equal(t, "Young", listed[1].Surname)
	assert.Equal(t, "", listed[1].Choices[1])
	assert.Equal(t, "Music", listed[1].Choices[2])
	require.NotNil(t, listed[1].AcademicYear)
	assert.Equal(t, "2024-25", *listed[1].AcademicYear)

	require.NoError(t, repo.SetStudentIncluded(ctx, listed[0].ID, false))

	included, err := repo.ListIncludedStudentChoices(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, "Zoe", included[0].Forename)

	count, err := repo.CountIncludedStudents(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetStudentChoice(ctx, listed[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Included)

	_, err = repo.GetStudentChoice(ctx, 9999)
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)
	assert.ErrorIs(t, repo.SetStudentIncluded(ctx, 9999, true), errors.ErrRecordNotFound)
}

func TestReplaceSubjectTotals(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	upload := createUpload(t, repo, "teacher-1", model.YearGroupS3)

	first := []model.SubjectTotal{
		{YearGroup: model.YearGroupS3, SubjectName: "Art", Count: 2},
		{YearGroup: model.YearGroupS3, SubjectName: "Music", Count: 5},
	}
	require.NoError(t, repo.ReplaceSubjectTotals(ctx, upload.ID, first))

	second := []model.SubjectTotal{
		{YearGroup: model.YearGroupS3, SubjectName: "Art", Count: 1},
	}
	require.NoError(t, repo.ReplaceSubjectTotals(ctx, upload.ID, second))

	totals, err := repo.ListSubjectTotals(ctx, upload.ID)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "Art", totals[0].SubjectName)
	assert.Equal(t, 1, totals[0].Count)
}

func TestTotalsAggregatesScopedToOwner(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a := createUpload(t, repo, "teacher-1", model.YearGroupS3)
	b := createUpload(t, repo, "teacher-1", model.YearGroupS3)
	other := createUpload(t, repo, "teacher-2", model.YearGroupS3)

	require.NoError(t, repo.ReplaceSubjectTotals(ctx, a.ID, []model.SubjectTotal{
		{YearGroup: model.YearGroupS3, SubjectName: "Art", Count: 2},
	}))
	require.NoError(t, repo.ReplaceSubjectTotals(ctx, b.ID, []model.SubjectTotal{
		{YearGroup: model.YearGroupS3, SubjectName: "Art", Count: 3},
		{YearGroup: model.YearGroupS3, SubjectName: "Drama", Count: 1},
	}))
	require.NoError(t, repo.ReplaceSubjectTotals(ctx, other.ID, []model.SubjectTotal{
		{YearGroup: model.YearGroupS3, SubjectName: "Art", Count: 50},
	}))

	sums, err := repo.SumSubjectTotalsByYearGroup(ctx, "teacher-1")
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "Art", sums[0].SubjectName)
	assert.Equal(t, 5, sums[0].Total)

	stats, err := repo.YearGroupStats(ctx, "teacher-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].SubjectCount)
	assert.Equal(t, 6, stats[0].TotalChoices)
}

func TestWithTxRollsBack(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	upload := createUpload(t, repo, "teacher-1", model.YearGroupS3)

	err := repo.WithTx(ctx, func(q Queries) error {
		claimed, err := q.ClaimUpload(ctx, upload.ID, 1)
		require.NoError(t, err)
		require.True(t, claimed)
		return errors.ErrQueueFull
	})
	require.ErrorIs(t, err, errors.ErrQueueFull)

	got, err := repo.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
}

func TestMappingUpsertAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	mapping := &model.SubjectMapping{YearGroup: model.YearGroupS4, RawLabel: "ART5", CanonicalLabel: "Art"}
	require.NoError(t, repo.UpsertMapping(ctx, mapping))
	require.NotZero(t, mapping.ID)
	firstID := mapping.ID

	mapping = &model.SubjectMapping{YearGroup: model.YearGroupS4, RawLabel: "ART5", CanonicalLabel: "Art & Design"}
	require.NoError(t, repo.UpsertMapping(ctx, mapping))
	assert.Equal(t, firstID, mapping.ID)
	assert.Equal(t, "Art & Design", mapping.CanonicalLabel)

	found, err := repo.FindMapping(ctx, model.YearGroupS4, "art5")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Art & Design", found.CanonicalLabel)

	missing, err := repo.FindMapping(ctx, model.YearGroupS3, "ART5")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.UpsertMapping(ctx, &model.SubjectMapping{
		YearGroup: model.YearGroupS3, RawLabel: "MUS", CanonicalLabel: "Music",
	}))

	all, err := repo.ListMappings(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	s4, err := repo.ListMappings(ctx, model.YearGroupS4)
	require.NoError(t, err)
	require.Len(t, s4, 1)

	require.NoError(t, repo.DeleteMapping(ctx, firstID))
	assert.ErrorIs(t, repo.DeleteMapping(ctx, firstID), errors.ErrMappingNotFound)
}

func TestDeleteUploadRemovesDependents(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	upload := createUpload(t, repo, "teacher-1", model.YearGroupS3)

	require.NoError(t, repo.InsertStudentChoices(ctx, []model.StudentChoice{
		{UploadID: upload.ID, Forename: "Amy", YearGroup: model.YearGroupS3, Included: true},
	}))
	require.NoError(t, repo.ReplaceSubjectTotals(ctx, upload.ID, []model.SubjectTotal{
		{YearGroup: model.YearGroupS3, SubjectName: "Art", Count: 1},
	}))

	require.NoError(t, repo.DeleteUpload(ctx, upload.ID))

	records, err := repo.ListStudentChoices(ctx, upload.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = repo.GetUpload(ctx, upload.ID)
	assert.ErrorIs(t, err, errors.ErrUploadNotFound)
	assert.ErrorIs(t, repo.DeleteUpload(ctx, upload.ID), errors.ErrUploadNotFound)
}

func TestListProcessedUploads(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a := createUpload(t, repo, "teacher-1", model.YearGroupS4)
	createUpload(t, repo, "teacher-1", model.YearGroupS4)
	createUpload(t, repo, "teacher-1", model.YearGroupS3)

	_, err := repo.ClaimUpload(ctx, a.ID, 0)
	require.NoError(t, err)

	processed, err := repo.ListProcessedUploads(ctx, "teacher-1", model.YearGroupS4)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, a.ID, processed[0].ID)

	all, err := repo.ListUploads(ctx, "teacher-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
