package spreadsheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"subject-choices/pkg/errors"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// TableReader reads the first table of a file as raw string cells, header row first.
type TableReader interface {
	ReadTable(ctx context.Context, r io.Reader) ([][]string, error)
}

type CSVReader struct{}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (CSVReader) ReadTable(ctx context.Context, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewStorageError("read csv", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		// Spreadsheet exports on Windows default to code page 1252.
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	return records, nil
}

type WorkbookReader struct{}

// ReadTable reads the first worksheet.
func (WorkbookReader) ReadTable(ctx context.Context, r io.Reader) ([][]string, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

// ReaderFor picks a table reader by file extension.
func ReaderFor(filename string) (TableReader, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return CSVReader{}, nil
	case ".xlsx", ".xlsm", ".xls":
		return WorkbookReader{}, nil
	default:
		return nil, errors.ErrUnsupportedFileType
	}
}
