package model

import (
	"strings"

	"subject-choices/pkg/errors"
)

type YearGroup string

const (
	YearGroupS3  YearGroup = "S3"
	YearGroupS4  YearGroup = "S4"
	YearGroupS56 YearGroup = "S5-6"
)

// YearGroups lists the enumeration in display order.
var YearGroups = []YearGroup{YearGroupS3, YearGroupS4, YearGroupS56}

func (y YearGroup) Valid() bool {
	for _, yg := range YearGroups {
		if y == yg {
			return true
		}
	}
	return false
}

func ParseYearGroup(s string) (YearGroup, error) {
	yg := YearGroup(strings.ToUpper(strings.TrimSpace(s)))
	if !yg.Valid() {
		return "", errors.ErrInvalidYearGroup
	}
	return yg, nil
}
