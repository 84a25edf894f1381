package spreadsheet

import (
	"context"
	"io"

	"subject-choices/internal/logger"
	"subject-choices/internal/model"
	"subject-choices/pkg/errors"

	"github.com/rs/zerolog"
)

type Parser struct {
	validator *Validator
	log       zerolog.Logger
}

func NewParser() *Parser {
	return &Parser{
		validator: NewValidator(),
		log:       logger.Get().With().Str("component", "spreadsheet_parser").Logger(),
	}
}

// Parse reads a CSV or workbook file, detects its columns and returns one row
// per student with exactly eight choice slots.
func (p *Parser) Parse(ctx context.Context, filename string, r io.Reader, yearGroup model.YearGroup) ([]model.ChoiceRow, error) {
	reader, err := ReaderFor(filename)
	if err != nil {
		return nil, err
	}

	table, err := reader.ReadTable(ctx, r)
	if err != nil {
		return nil, err
	}

	rows, err := p.parseTable(table)
	if err != nil {
		return nil, err
	}

	if err := p.validator.Validate(ctx, rows); err != nil {
		return nil, err
	}

	p.log.Debug().
		Str("filename", filename).
		Str("year_group", string(yearGroup)).
		Int("rows", len(rows)).
		Msg("Parsed subject choice file")

	return rows, nil
}

func (p *Parser) parseTable(table [][]string) ([]model.ChoiceRow, error) {
	if len(table) == 0 {
		return nil, errors.SchemaError{Reason: "file has no header row"}
	}

	layout, err := detectColumns(normaliseHeaders(table[0]))
	if err != nil {
		return nil, err
	}

	// Data starts on line 2, after the header.
	return layout.rows(table[1:], 2), nil
}
