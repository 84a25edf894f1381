package model

import "time"

type IngestionJob struct {
	UploadID int64  `json:"upload_id"`
	ActorID  string `json:"actor_id"`
}

type ImportResult struct {
	UploadID    int64 `json:"upload_id"`
	RecordCount int   `json:"record_count"`
}

type UploadDetail struct {
	Upload           Upload          `json:"upload"`
	AcademicYear     *string         `json:"academic_year,omitempty"`
	Students         []StudentChoice `json:"students"`
	Totals           []SubjectTotal  `json:"totals"`
	TotalStudents    int             `json:"total_students"`
	IncludedStudents int             `json:"included_students"`
	ExcludedStudents int             `json:"excluded_students"`
}

type SummaryStats struct {
	TotalChoices   int           `json:"total_choices"`
	UniqueSubjects int           `json:"unique_subjects"`
	MostPopular    *SubjectTotal `json:"most_popular"`
	LeastPopular   *SubjectTotal `json:"least_popular"`
	AverageChoices float64       `json:"average_choices"`
}

type CoincidenceMatrix struct {
	UploadID      int64                     `json:"upload_id"`
	Subjects      []string                  `json:"subjects"`
	Pairs         map[string]map[string]int `json:"pairs"`
	SubjectTotals map[string]int            `json:"subject_totals"`
	TotalStudents int                       `json:"total_students"`
}

type SubjectShare struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type UploadSnapshot struct {
	UploadID         int64          `json:"upload_id"`
	Filename         string         `json:"filename"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	AcademicYear     *string        `json:"academic_year,omitempty"`
	TotalStudents    int            `json:"total_students"`
	IncludedStudents int            `json:"included_students"`
	Subjects         []SubjectShare `json:"subjects"`
}

type ComparisonCell struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ComparisonRow struct {
	Subject string           `json:"subject"`
	Uploads []ComparisonCell `json:"uploads"`
	// Change is nil until at least two uploads exist.
	Change *float64 `json:"change,omitempty"`
}

type YearSummary struct {
	YearGroup  YearGroup        `json:"year_group"`
	Uploads    []UploadSnapshot `json:"uploads"`
	Comparison []ComparisonRow  `json:"comparison"`
}

type YearGroupSubjectSum struct {
	YearGroup   YearGroup `db:"year_group"`
	SubjectName string    `db:"subject_name"`
	Total       int       `db:"total_count"`
}

type YearGroupStat struct {
	YearGroup    YearGroup `json:"year_group" db:"year_group"`
	SubjectCount int       `json:"subject_count" db:"subject_count"`
	TotalChoices int       `json:"total_choices" db:"total_choices"`
}

type Dashboard struct {
	Uploads          []Upload        `json:"uploads"`
	TotalUploads     int             `json:"total_uploads"`
	ProcessedUploads int             `json:"processed_uploads"`
	SubjectStats     []YearGroupStat `json:"subject_stats"`
}

// SubjectComparison holds one subject's summed counts per year group, zero-filled.
type SubjectComparison struct {
	Subject string            `json:"subject"`
	Counts  map[YearGroup]int `json:"counts"`
}
