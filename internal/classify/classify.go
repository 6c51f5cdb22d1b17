// Package classify maps an upload's filename to its academic year and
// category by plain substring matching.
//
// Matching is literal: the first configured year found anywhere in the name
// wins (so "31st" matches "1st"), and "CW" beats "SW" when both appear. The
// package touches no filesystem state.
package classify

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"coursedrop/internal/failure"
)

// Year is an academic-year token such as "2nd".
type Year string

// Category is a placement category token.
type Category string

const (
	Coursework Category = "CW"
	Selfwork   Category = "SW"
)

var categoryNames = map[Category]string{
	Coursework: "coursework",
	Selfwork:   "self-work",
}

// Categories returns the category tokens in priority order.
func Categories() []Category {
	return []Category{Coursework, Selfwork}
}

// Label returns a human readable name such as "Coursework (CW)".
func (c Category) Label() string {
	name, ok := categoryNames[c]
	if !ok {
		return string(c)
	}
	return fmt.Sprintf("%s (%s)", cases.Title(language.English).String(name), c)
}

// DefaultYears returns the stock year tokens in scan order.
func DefaultYears() []Year {
	return []Year{"1st", "2nd", "3rd", "4th"}
}

// Match is a successful classification.
type Match struct {
	Filename string
	Year     Year
	Category Category
}

// Key returns the slash-separated "<category>/<year>/<filename>" key.
func (m Match) Key() string {
	return path.Join(string(m.Category), string(m.Year), m.Filename)
}

// Classifier scans filenames for a fixed, ordered set of year tokens.
type Classifier struct {
	years []Year
}

// New builds a classifier for the given year tokens in scan order. Blank
// entries are skipped; an empty list falls back to DefaultYears.
func New(years []string) *Classifier {
	c := &Classifier{}
	for _, year := range years {
		if trimmed := strings.TrimSpace(year); trimmed != "" {
			c.years = append(c.years, Year(trimmed))
		}
	}
	if len(c.years) == 0 {
		c.years = DefaultYears()
	}
	return c
}

// Years returns a copy of the scan order.
func (c *Classifier) Years() []Year {
	return append([]Year(nil), c.years...)
}

// Classify determines the year and category encoded in filename.
// It fails with failure.ErrNoYearMatch or failure.ErrNoCategoryMatch.
func (c *Classifier) Classify(filename string) (Match, error) {
	year, ok := c.matchYear(filename)
	if !ok {
		return Match{}, failure.Wrap(failure.ErrNoYearMatch, "classify", "match year",
			fmt.Sprintf("%q contains none of %s", filename, c.yearList()), nil)
	}
	for _, category := range Categories() {
		if strings.Contains(filename, string(category)) {
			return Match{Filename: filename, Year: year, Category: category}, nil
		}
	}
	return Match{}, failure.Wrap(failure.ErrNoCategoryMatch, "classify", "match category",
		fmt.Sprintf("%q contains neither CW nor SW", filename), nil)
}

func (c *Classifier) matchYear(filename string) (Year, bool) {
	for _, year := range c.years {
		if strings.Contains(filename, string(year)) {
			return year, true
		}
	}
	return "", false
}

func (c *Classifier) yearList() string {
	parts := make([]string, len(c.years))
	for i, year := range c.years {
		parts[i] = string(year)
	}
	return strings.Join(parts, ", ")
}

var defaultClassifier = New(nil)

// Classify runs the default classifier (years 1st..4th) against filename.
func Classify(filename string) (Match, error) {
	return defaultClassifier.Classify(filename)
}
