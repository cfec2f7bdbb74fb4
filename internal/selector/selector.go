// Package selector decides which publication dates a run has to (re)process.
package selector

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Mode controls whether already stored dates are reprocessed.
type Mode string

const (
	// ModeIncremental only processes dates after the store's high-water date.
	ModeIncremental Mode = "incremental"
	// ModeFull reprocesses every discoverable date.
	ModeFull Mode = "full"
)

// ErrInvalidStartDate is returned for a start-date floor that is not YYYY-MM-DD.
var ErrInvalidStartDate = errors.New("start date must be YYYY-MM-DD")

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseMode validates a mode name; empty means incremental.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected incremental or full)", raw)
	}
}

// ValidateStartDate checks an optional start-date floor.
func ValidateStartDate(raw string) error {
	if raw == "" || isoDate.MatchString(raw) {
		return nil
	}
	return fmt.Errorf("%w, got: %s", ErrInvalidStartDate, raw)
}

// IsISODate reports whether raw looks like YYYY-MM-DD.
func IsISODate(raw string) bool {
	return isoDate.MatchString(raw)
}

// Catalog maps a publication date to the upstream paths published for it.
type Catalog map[string][]string

// Add registers path as a candidate for date.
func (c Catalog) Add(date, path string) {
	c[date] = append(c[date], path)
}

// Dates returns every catalogued date in ascending order.
func (c Catalog) Dates() []string {
	dates := make([]string, 0, len(c))
	for d := range c {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

// Candidates returns the paths for date in the order they should be tried:
// reverse-sorted, so later revisions of a same-day document win.
func (c Catalog) Candidates(date string) []string {
	paths := slices.Clone(c[date])
	slices.Sort(paths)
	slices.Reverse(paths)
	return paths
}

// Options parameterise a selection.
type Options struct {
	Mode Mode
	// HighWater is the latest date already stored, empty when the store is empty.
	HighWater string
	// StartDate is an inclusive floor, empty for none.
	StartDate string
	// MaxFiles caps the batch to the most recent dates; <= 0 is unbounded.
	MaxFiles int
}

// Select returns the ascending list of dates to process.
func Select(catalog Catalog, opts Options) ([]string, error) {
	if err := ValidateStartDate(opts.StartDate); err != nil {
		return nil, err
	}

	targets := catalog.Dates()

	if opts.Mode != ModeFull && opts.HighWater != "" {
		targets = slices.DeleteFunc(targets, func(d string) bool { return d <= opts.HighWater })
	}

	if opts.StartDate != "" {
		targets = slices.DeleteFunc(targets, func(d string) bool { return d < opts.StartDate })
	}

	if opts.MaxFiles > 0 && len(targets) > opts.MaxFiles {
		targets = targets[len(targets)-opts.MaxFiles:]
	}

	return targets, nil
}
