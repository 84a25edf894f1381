package errors

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrInvalidFileFormat   = errors.New("invalid file format")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidYearGroup    = errors.New("invalid year group")
	ErrUploadNotFound      = errors.New("upload not found")
	ErrRecordNotFound      = errors.New("student record not found")
	ErrMappingNotFound     = errors.New("subject mapping not found")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrQueueFull           = errors.New("job queue full")
)

// SchemaError reports that a file lacks the columns needed to ingest it.
type SchemaError struct {
	Reason string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s", e.Reason)
}

type AlreadyProcessedError struct {
	UploadID int64
}

func (e AlreadyProcessedError) Error() string {
	return fmt.Sprintf("upload %d has already been processed", e.UploadID)
}

type UnauthorizedError struct {
	ActorID  string
	Resource string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("actor '%s' is not allowed to access %s", e.ActorID, e.Resource)
}

// MappingPersistError is non-fatal: callers log it and carry on ingesting.
type MappingPersistError struct {
	YearGroup string
	Count     int
	Err       error
}

func (e MappingPersistError) Error() string {
	return fmt.Sprintf("failed to save %d subject mappings for %s: %s", e.Count, e.YearGroup, e.Err.Error())
}

func (e MappingPersistError) Unwrap() error {
	return e.Err
}

type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %s", e.Op, e.Err.Error())
}

func (e StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op string, err error) error {
	return StorageError{
		Op:  op,
		Err: err,
	}
}

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// Is and As let callers match the taxonomy without importing both packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
