package billing

import (
	"fmt"
	"strings"
	"time"

	"medshop/internal/apperr"
	"medshop/internal/models"
)

// Date filter kinds for bill listings and exports.
const (
	FilterAll       = "all"
	FilterToday     = "today"
	FilterYesterday = "yesterday"
	FilterThisWeek  = "this_week"
	FilterThisMonth = "this_month"
	FilterThisYear  = "this_year"
	FilterCustom    = "custom"
)

const dateLayout = "2006-01-02"

type DateFilter struct {
	Kind  string
	Start time.Time
	End   time.Time
}

// ParseDateFilter builds a filter from query values. Dates are YYYY-MM-DD and
// only read for FilterCustom.
func ParseDateFilter(kind, start, end string) (DateFilter, error) {
	kind = strings.TrimSpace(kind)
	switch kind {
	case "", FilterAll:
		return DateFilter{Kind: FilterAll}, nil
	case FilterToday, FilterYesterday, FilterThisWeek, FilterThisMonth, FilterThisYear:
		return DateFilter{Kind: kind}, nil
	case FilterCustom:
	default:
		return DateFilter{}, apperr.Validation(fmt.Sprintf("unknown date filter %q", kind))
	}

	if start == "" || end == "" {
		return DateFilter{}, apperr.Validation("start_date and end_date are required for a custom range")
	}
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateFilter{}, apperr.Validation("start_date must be YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateFilter{}, apperr.Validation("end_date must be YYYY-MM-DD")
	}
	if from.After(to) {
		return DateFilter{}, apperr.Validation("start_date must not be after end_date")
	}
	return DateFilter{Kind: FilterCustom, Start: from, End: to}, nil
}

// Range returns the half-open interval [from, to) the filter selects,
// evaluated against now in UTC. ok is false for FilterAll.
func (f DateFilter) Range(now time.Time) (from, to time.Time, ok bool) {
	today := models.Today(now.UTC())
	switch f.Kind {
	case FilterToday:
		return today, today.AddDate(0, 0, 1), true
	case FilterYesterday:
		return today.AddDate(0, 0, -1), today, true
	case FilterThisWeek:
		from = today.AddDate(0, 0, -int(today.Weekday()))
		return from, from.AddDate(0, 0, 7), true
	case FilterThisMonth:
		from = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), true
	case FilterThisYear:
		from = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0), true
	case FilterCustom:
		return models.Today(f.Start), models.Today(f.End).AddDate(0, 0, 1), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Label names the filter in export file names.
func (f DateFilter) Label() string {
	switch f.Kind {
	case "":
		return FilterAll
	case FilterCustom:
		return f.Start.Format(dateLayout) + "_to_" + f.End.Format(dateLayout)
	default:
		return f.Kind
	}
}
