package model

import (
	"strings"
	"time"
)

// ChoiceSlots is fixed for every year group; unused slots stay empty.
const ChoiceSlots = 8

// ChoiceLetters names the slots in column order.
var ChoiceLetters = [ChoiceSlots]string{"a", "b", "c", "d", "e", "f", "g", "h"}

// ChoiceRow is one student row as read from a spreadsheet, before name resolution.
type ChoiceRow struct {
	// Line is the 1-based line in the source file, header included.
	Line     int                 `json:"line"`
	Forename string              `json:"forename" validate:"required,max=100"`
	Surname  string              `json:"surname" validate:"max=100"`
	RegClass string              `json:"reg_class" validate:"max=50"`
	Choices  [ChoiceSlots]string `json:"choices" validate:"dive,max=100"`
}

type StudentChoice struct {
	ID           int64               `json:"id"`
	UploadID     int64               `json:"upload_id"`
	Forename     string              `json:"forename"`
	Surname      string              `json:"surname"`
	RegClass     string              `json:"reg_class"`
	YearGroup    YearGroup           `json:"year_group"`
	AcademicYear *string             `json:"academic_year,omitempty"`
	Choices      [ChoiceSlots]string `json:"choices"`
	Included     bool                `json:"included"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Subjects returns the non-empty slots in slot order, duplicates kept.
func (s *StudentChoice) Subjects() []string {
	subjects := make([]string, 0, ChoiceSlots)
	for _, choice := range s.Choices {
		if c := strings.TrimSpace(choice); c != "" {
			subjects = append(subjects, c)
		}
	}
	return subjects
}

type SubjectTotal struct {
	ID           int64     `json:"id" db:"id"`
	UploadID     int64     `json:"upload_id" db:"upload_id"`
	YearGroup    YearGroup `json:"year_group" db:"year_group"`
	SubjectName  string    `json:"subject_name" db:"subject_name"`
	Count        int       `json:"count" db:"choice_count"`
	AcademicYear *string   `json:"academic_year,omitempty" db:"academic_year"`
}

type SubjectMapping struct {
	ID             int64     `json:"id" db:"id"`
	YearGroup      YearGroup `json:"year_group" db:"year_group" validate:"required"`
	RawLabel       string    `json:"raw_label" db:"raw_label" validate:"required,max=200"`
	CanonicalLabel string    `json:"canonical_label" db:"canonical_label" validate:"required,max=200"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
