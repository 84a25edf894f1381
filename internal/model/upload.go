package model

import "time"

type Upload struct {
	ID               int64     `json:"id" db:"id"`
	Filename         string    `json:"filename" db:"filename"`
	OriginalFilename string    `json:"original_filename" db:"original_filename"`
	FileType         string    `json:"file_type" db:"file_type"`
	YearGroup        YearGroup `json:"year_group" db:"year_group"`
	UploadedAt       time.Time `json:"uploaded_at" db:"uploaded_at"`
	Processed        bool      `json:"processed" db:"processed"`
	RecordCount      *int      `json:"record_count,omitempty" db:"record_count"`
	OwnerID          string    `json:"owner_id" db:"owner_id"`
}
