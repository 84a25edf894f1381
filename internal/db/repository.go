package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subject-choices/internal/model"
	"subject-choices/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// Queries is the set of statements available both on the pool and inside a transaction.
type Queries interface {
	CreateUpload(ctx context.Context, upload *model.Upload) error
	GetUpload(ctx context.Context, uploadID int64) (*model.Upload, error)
	ListUploads(ctx context.Context, ownerID string) ([]model.Upload, error)
	ListProcessedUploads(ctx context.Context, ownerID string, yearGroup model.YearGroup) ([]model.Upload, error)
	ClaimUpload(ctx context.Context, uploadID int64, recordCount int) (bool, error)
	DeleteUpload(ctx context.Context, uploadID int64) error

	InsertStudentChoices(ctx context.Context, records []model.StudentChoice) error
	GetStudentChoice(ctx context.Context, recordID int64) (*model.StudentChoice, error)
	ListStudentChoices(ctx context.Context, uploadID int64) ([]model.StudentChoice, error)
	ListIncludedStudentChoices(ctx context.Context, uploadID int64) ([]model.StudentChoice, error)
	CountIncludedStudents(ctx context.Context, uploadID int64) (int, error)
	SetStudentIncluded(ctx context.Context, recordID int64, included bool) error

	ReplaceSubjectTotals(ctx context.Context, uploadID int64, totals []model.SubjectTotal) error
	ListSubjectTotals(ctx context.Context, uploadID int64) ([]model.SubjectTotal, error)
	SumSubjectTotalsByYearGroup(ctx context.Context, ownerID string) ([]model.YearGroupSubjectSum, error)
	YearGroupStats(ctx context.Context, ownerID string) ([]model.YearGroupStat, error)

	FindMapping(ctx context.Context, yearGroup model.YearGroup, rawLabel string) (*model.SubjectMapping, error)
	UpsertMapping(ctx context.Context, mapping *model.SubjectMapping) error
	ListMappings(ctx context.Context, yearGroup model.YearGroup) ([]model.SubjectMapping, error)
	DeleteMapping(ctx context.Context, mappingID int64) error
}

type Repository interface {
	Queries
	// WithTx runs fn in one transaction, committing only if fn returns nil.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

type queries struct {
	ext sqlx.ExtContext
}

type repository struct {
	queries
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{
		queries: queries{ext: db},
		db:      db,
	}
}

func (r *repository) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorageError("commit transaction", err)
	}
	return nil
}

func (q *queries) insertReturningID(ctx context.Context, query string, args ...interface{}) (int64, error) {
	query = q.ext.Rebind(query)
	if q.ext.DriverName() == DriverPostgres {
		var id int64
		err := q.ext.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const uploadColumns = `id, filename, original_filename, file_type, year_group, uploaded_at, processed, record_count, owner_id`

func (q *queries) CreateUpload(ctx context.Context, upload *model.Upload) error {
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = time.Now().UTC()
	}

	id, err := q.insertReturningID(ctx, `INSERT INTO uploads
		(filename, original_filename, file_type, year_group, uploaded_at, processed, record_count, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.Filename, upload.OriginalFilename, upload.FileType, upload.YearGroup,
		upload.UploadedAt, upload.Processed, upload.RecordCount, upload.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	upload.ID = id
	return nil
}

func (q *queries) GetUpload(ctx context.Context, uploadID int64) (*model.Upload, error) {
	var upload model.Upload
	err := sqlx.GetContext(ctx, q.ext, &upload,
		q.ext.Rebind(`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`), uploadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

func (q *queries) ListUploads(ctx context.Context, ownerID string) ([]model.Upload, error) {
	var uploads []model.Upload
	err := sqlx.SelectContext(ctx, q.ext, &uploads, q.ext.Rebind(`SELECT `+uploadColumns+`
		FROM uploads WHERE owner_id = ?
		ORDER BY uploaded_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

func (q *queries) ListProcessedUploads(ctx context.Context, ownerID string, yearGroup model.YearGroup) ([]model.Upload, error) {
	var uploads []model.Upload
	err := sqlx.SelectContext(ctx, q.ext, &uploads, q.ext.Rebind(`SELECT `+uploadColumns+`
		FROM uploads WHERE owner_id = ? AND year_group = ? AND processed = ?
		ORDER BY uploaded_at DESC, id DESC`), ownerID, yearGroup, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed uploads: %w", err)
	}
	return uploads, nil
}

// ClaimUpload flips processed from false to true in a single statement.
// It returns false when another caller already claimed the upload.
func (q *queries) ClaimUpload(ctx context.Context, uploadID int64, recordCount int) (bool, error) {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`UPDATE uploads SET processed = ?, record_count = ?
		WHERE id = ? AND processed = ?`), true, recordCount, uploadID, false)
	if err != nil {
		return false, fmt.Errorf("failed to claim upload: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim upload: %w", err)
	}
	return affected == 1, nil
}

func (q *queries) DeleteUpload(ctx context.Context, uploadID int64) error {
	for _, stmt := range []string{
		`DELETE FROM subject_totals WHERE upload_id = ?`,
		`DELETE FROM student_choices WHERE upload_id = ?`,
	} {
		if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(stmt), uploadID); err != nil {
			return fmt.Errorf("failed to delete upload data: %w", err)
		}
	}

	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`DELETE FROM uploads WHERE id = ?`), uploadID)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return errors.ErrUploadNotFound
	}
	return nil
}

type studentChoiceRow struct {
	ID           int64           `db:"id"`
	UploadID     int64           `db:"upload_id"`
	Forename     sql.NullString  `db:"forename"`
	Surname      sql.NullString  `db:"surname"`
	RegClass     sql.NullString  `db:"reg_class"`
	YearGroup    model.YearGroup `db:"year_group"`
	AcademicYear *string         `db:"academic_year"`
	ChoiceA      sql.NullString  `db:"choice_a"`
	ChoiceB      sql.NullString  `db:"choice_b"`
	ChoiceC      sql.NullString  `db:"choice_c"`
	ChoiceD      sql.NullString  `db:"choice_d"`
	ChoiceE      sql.NullString  `db:"choice_e"`
	ChoiceF      sql.NullString  `db:"choice_f"`
	ChoiceG      sql.NullString  `db:"choice_g"`
	ChoiceH      sql.NullString  `db:"choice_h"`
	Included     bool            `db:"included"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r *studentChoiceRow) slots() [model.ChoiceSlots]*sql.NullString {
	return [model.ChoiceSlots]*sql.NullString{
		&r.ChoiceA, &r.ChoiceB, &r.ChoiceC, &r.ChoiceD,
		&r.ChoiceE, &r.ChoiceF, &r.ChoiceG, &r.ChoiceH,
	}
}

func (r *studentChoiceRow) toModel() model.StudentChoice {
	record := model.StudentChoice{
		ID:           r.ID,
		UploadID:     r.UploadID,
		Forename:     r.Forename.String,
		Surname:      r.Surname.String,
		RegClass:     r.RegClass.String,
		YearGroup:    r.YearGroup,
		AcademicYear: r.AcademicYear,
		Included:     r.Included,
		CreatedAt:    r.CreatedAt,
	}
	for i, slot := range r.slots() {
		record.Choices[i] = slot.String
	}
	return record
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const studentChoiceColumns = `id, upload_id, forename, surname, reg_class, year_group, academic_year,
	choice_a, choice_b, choice_c, choice_d, choice_e, choice_f, choice_g, choice_h, included, created_at`

func (q *queries) InsertStudentChoices(ctx context.Context, records []model.StudentChoice) error {
	query := q.ext.Rebind(`INSERT INTO student_choices
		(upload_id, forename, surname, reg_class, year_group, academic_year,
		 choice_a, choice_b, choice_c, choice_d, choice_e, choice_f, choice_g, choice_h, included, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	now := time.Now().UTC()
	for _, record := range records {
		args := []interface{}{
			record.UploadID, nullString(record.Forename), nullString(record.Surname), nullString(record.RegClass),
			record.YearGroup, record.AcademicYear,
		}
		for _, choice := range record.Choices {
			args = append(args, nullString(choice))
		}
		args = append(args, record.Included, now)

		if _, err := q.ext.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert student choice: %w", err)
		}
	}

	return nil
}

func (q *queries) GetStudentChoice(ctx context.Context, recordID int64) (*model.StudentChoice, error) {
	var row studentChoiceRow
	err := sqlx.GetContext(ctx, q.ext, &row,
		q.ext.Rebind(`SELECT `+studentChoiceColumns+` FROM student_choices WHERE id = ?`), recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student choice: %w", err)
	}

	record := row.toModel()
	return &record, nil
}

func (q *queries) selectStudentChoices(ctx context.Context, query string, args ...interface{}) ([]model.StudentChoice, error) {
	var rows []studentChoiceRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, q.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list student choices: %w", err)
	}

	records := make([]model.StudentChoice, len(rows))
	for i := range rows {
		records[i] = rows[i].toModel()
	}
	return records, nil
}

func (q *queries) ListStudentChoices(ctx context.Context, uploadID int64) ([]model.StudentChoice, error) {
	return q.selectStudentChoices(ctx, `SELECT `+studentChoiceColumns+`
		FROM student_choices WHERE upload_id = ?
		ORDER BY surname, forename, id`, uploadID)
}

func (q *queries) ListIncludedStudentChoices(ctx context.Context, uploadID int64) ([]model.StudentChoice, error) {
	return q.selectStudentChoices(ctx, `SELECT `+studentChoiceColumns+`
		FROM student_choices WHERE upload_id = ? AND included = ?
		ORDER BY id`, uploadID, true)
}

func (q *queries) CountIncludedStudents(ctx context.Context, uploadID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count, q.ext.Rebind(`SELECT COUNT(*)
		FROM student_choices WHERE upload_id = ? AND included = ?`), uploadID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to count included students: %w", err)
	}
	return count, nil
}

func (q *queries) SetStudentIncluded(ctx context.Context, recordID int64, included bool) error {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`UPDATE student_choices SET included = ? WHERE id = ?`),
		included, recordID)
	if err != nil {
		return fmt.Errorf("failed to update inclusion: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 && q.ext.DriverName() != DriverMySQL {
		// MySQL reports changed rows, not matched rows, so zero is not conclusive there.
		return errors.ErrRecordNotFound
	}
	return nil
}

// ReplaceSubjectTotals deletes then reinserts. Callers run it inside WithTx.
func (q *queries) ReplaceSubjectTotals(ctx context.Context, uploadID int64, totals []model.SubjectTotal) error {
	if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(`DELETE FROM subject_totals WHERE upload_id = ?`), uploadID); err != nil {
		return fmt.Errorf("failed to clear subject totals: %w", err)
	}

	query := q.ext.Rebind(`INSERT INTO subject_totals (upload_id, year_group, subject_name, choice_count, academic_year)
		VALUES (?, ?, ?, ?, ?)`)
	for _, total := range totals {
		if _, err := q.ext.ExecContext(ctx, query,
			uploadID, total.YearGroup, total.SubjectName, total.Count, total.AcademicYear); err != nil {
			return fmt.Errorf("failed to insert subject total: %w", err)
		}
	}

	return nil
}

func (q *queries) ListSubjectTotals(ctx context.Context, uploadID int64) ([]model.SubjectTotal, error) {
	var totals []model.SubjectTotal
	err := sqlx.SelectContext(ctx, q.ext, &totals, q.ext.Rebind(`SELECT
		id, upload_id, year_group, subject_name, choice_count, academic_year
		FROM subject_totals WHERE upload_id = ?
		ORDER BY choice_count DESC, subject_name`), uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject totals: %w", err)
	}
	return totals, nil
}

func (q *queries) SumSubjectTotalsByYearGroup(ctx context.Context, ownerID string) ([]model.YearGroupSubjectSum, error) {
	var sums []model.YearGroupSubjectSum
	err := sqlx.SelectContext(ctx, q.ext, &sums, q.ext.Rebind(`SELECT
		t.year_group, t.subject_name, SUM(t.choice_count) AS total_count
		FROM subject_totals t
		JOIN uploads u ON u.id = t.upload_id
		WHERE u.owner_id = ?
		GROUP BY t.year_group, t.subject_name
		ORDER BY t.subject_name, t.year_group`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum subject totals: %w", err)
	}
	return sums, nil
}

func (q *queries) YearGroupStats(ctx context.Context, ownerID string) ([]model.YearGroupStat, error) {
	var stats []model.YearGroupStat
	err := sqlx.SelectContext(ctx, q.ext, &stats, q.ext.Rebind(`SELECT
		t.year_group, COUNT(t.id) AS subject_count, COALESCE(SUM(t.choice_count), 0) AS total_choices
		FROM subject_totals t
		JOIN uploads u ON u.id = t.upload_id
		WHERE u.owner_id = ?
		GROUP BY t.year_group
		ORDER BY t.year_group`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get year group stats: %w", err)
	}
	return stats, nil
}

const mappingColumns = `id, year_group, raw_label, canonical_label, created_at, updated_at`

// FindMapping matches the raw label case-insensitively. It returns nil, nil when no mapping exists.
func (q *queries) FindMapping(ctx context.Context, yearGroup model.YearGroup, rawLabel string) (*model.SubjectMapping, error) {
	var mapping model.SubjectMapping
	err := sqlx.GetContext(ctx, q.ext, &mapping, q.ext.Rebind(`SELECT `+mappingColumns+`
		FROM subject_mappings
		WHERE year_group = ? AND LOWER(raw_label) = LOWER(?)
		ORDER BY id
		LIMIT 1`), yearGroup, rawLabel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subject mapping: %w", err)
	}
	return &mapping, nil
}

func (q *queries) UpsertMapping(ctx context.Context, mapping *model.SubjectMapping) error {
	now := time.Now().UTC()

	var query string
	if q.ext.DriverName() == DriverMySQL {
		query = `INSERT INTO subject_mappings (year_group, raw_label, canonical_label, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE canonical_label = VALUES(canonical_label), updated_at = VALUES(updated_at)`
	} else {
		query = `INSERT INTO subject_mappings (year_group, raw_label, canonical_label, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (year_group, raw_label)
			DO UPDATE SET canonical_label = excluded.canonical_label, updated_at = excluded.updated_at`
	}

	if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(query),
		mapping.YearGroup, mapping.RawLabel, mapping.CanonicalLabel, now, now); err != nil {
		return fmt.Errorf("failed to upsert subject mapping: %w", err)
	}

	err := sqlx.GetContext(ctx, q.ext, mapping, q.ext.Rebind(`SELECT `+mappingColumns+`
		FROM subject_mappings WHERE year_group = ? AND raw_label = ?`), mapping.YearGroup, mapping.RawLabel)
	if err != nil {
		return fmt.Errorf("failed to reload subject mapping: %w", err)
	}
	return nil
}

// ListMappings returns every mapping when yearGroup is empty.
func (q *queries) ListMappings(ctx context.Context, yearGroup model.YearGroup) ([]model.SubjectMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM subject_mappings`
	var args []interface{}
	if yearGroup != "" {
		query += ` WHERE year_group = ?`
		args = append(args, yearGroup)
	}
	query += ` ORDER BY year_group, canonical_label, raw_label`

	var mappings []model.SubjectMapping
	if err := sqlx.SelectContext(ctx, q.ext, &mappings, q.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list subject mappings: %w", err)
	}
	return mappings, nil
}

func (q *queries) DeleteMapping(ctx context.Context, mappingID int64) error {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`DELETE FROM subject_mappings WHERE id = ?`), mappingID)
	if err != nil {
		return fmt.Errorf("failed to delete subject mapping: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return errors.ErrMappingNotFound
	}
	return nil
}
