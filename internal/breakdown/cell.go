package breakdown

import (
	"strconv"
	"strings"
	"time"
)

// RawSheet is an untyped grid as read from a workbook: rows of trimmed cell text.
type RawSheet [][]string

type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
	KindDate
)

// Cell is a single typed value in a record. The zero value is an empty cell,
// which also serves as the absent marker for dates that failed to parse.
type Cell struct {
	Kind   Kind
	Text   string
	Number float64
	Date   time.Time
}

func TextCell(value string) Cell {
	value = strings.TrimSpace(value)
	if value == "" {
		return Cell{}
	}
	return Cell{Kind: KindText, Text: value}
}

func NumberCell(value float64) Cell {
	return Cell{Kind: KindNumber, Number: value}
}

func DateCell(value time.Time) Cell {
	return Cell{Kind: KindDate, Date: value}
}

func (c Cell) IsEmpty() bool {
	return c.Kind == KindEmpty
}

// Float returns the numeric value of the cell, zero for anything that is not a number.
func (c Cell) Float() float64 {
	if c.Kind == KindNumber {
		return c.Number
	}
	return 0
}

func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindDate:
		return c.Date.Format("2006-01-02")
	default:
		return ""
	}
}
