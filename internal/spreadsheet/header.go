package spreadsheet

import (
	"fmt"
	"strings"

	"subject-choices/internal/model"
	"subject-choices/pkg/errors"
)

// fallbackExcluded marks headers that look like identifiers or dates.
var fallbackExcluded = []string{"id", "number", "date"}

type columnLayout struct {
	forename int
	surname  int
	// reg is -1 when the file has no registration column.
	reg int
	// choices holds a column index per slot, -1 for a missing slot.
	choices [model.ChoiceSlots]int
}

func normaliseHeaders(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			h = fmt.Sprintf("unnamed: %d", i)
		}
		out[i] = h
	}
	return out
}

func firstMatch(headers []string, match func(string) bool) int {
	for i, h := range headers {
		if match(h) {
			return i
		}
	}
	return -1
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// detectColumns locates the name, registration and choice columns in a normalised header row.
func detectColumns(headers []string) (columnLayout, error) {
	layout := columnLayout{
		forename: firstMatch(headers, func(h string) bool { return containsAny(h, "forename", "first") }),
		surname:  firstMatch(headers, func(h string) bool { return containsAny(h, "surname", "last") }),
		reg:      firstMatch(headers, func(h string) bool { return strings.Contains(h, "reg") }),
	}

	switch {
	case layout.forename < 0 && layout.surname < 0:
		return layout, errors.SchemaError{Reason: "could not find forename and surname columns"}
	case layout.forename < 0:
		return layout, errors.SchemaError{Reason: "could not find a forename column"}
	case layout.surname < 0:
		return layout, errors.SchemaError{Reason: "could not find a surname column"}
	}

	found := false
	for slot, letter := range model.ChoiceLetters {
		layout.choices[slot] = firstMatch(headers, func(h string) bool {
			return h == letter || strings.Contains(h, "choice "+letter) || strings.Contains(h, "column "+letter)
		})
		if layout.choices[slot] >= 0 {
			found = true
		}
	}

	if !found {
		layout.fallbackChoices(headers)
	}

	return layout, nil
}

// fallbackChoices assigns the first eight remaining columns to slots A to H in file order.
func (l *columnLayout) fallbackChoices(headers []string) {
	slot := 0
	for i, h := range headers {
		if slot == model.ChoiceSlots {
			break
		}
		if i == l.forename || i == l.surname || i == l.reg {
			continue
		}
		if containsAny(h, fallbackExcluded...) {
			continue
		}
		l.choices[slot] = i
		slot++
	}
	for ; slot < model.ChoiceSlots; slot++ {
		l.choices[slot] = -1
	}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// rows converts data rows into choice rows, dropping any without a forename.
func (l columnLayout) rows(data [][]string, firstLine int) []model.ChoiceRow {
	rows := make([]model.ChoiceRow, 0, len(data))
	for i, record := range data {
		forename := cell(record, l.forename)
		if forename == "" {
			continue
		}

		row := model.ChoiceRow{
			Line:     firstLine + i,
			Forename: forename,
			Surname:  cell(record, l.surname),
			RegClass: cell(record, l.reg),
		}
		for slot, idx := range l.choices {
			row.Choices[slot] = cell(record, idx)
		}
		rows = append(rows, row)
	}
	return rows
}
