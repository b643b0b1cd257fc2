package appointment

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/pl"
)

// HolidayCalendar answers whether a civil date is a public holiday.
type HolidayCalendar interface {
	IsHoliday(day time.Time) bool
}

// PublicHolidays computes holidays per year from a rule set and caches the result.
type PublicHolidays struct {
	rules []*cal.Holiday

	mu    sync.Mutex
	years map[int]map[string]string
}

var holidayRules = map[string][]*cal.Holiday{
	"PL": pl.Holidays,
}

// NewPublicHolidays returns the calendar for an ISO country code.
// "NONE" yields a calendar without holidays.
func NewPublicHolidays(country string) (*PublicHolidays, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "NONE" || country == "" {
		return &PublicHolidays{years: map[int]map[string]string{}}, nil
	}
	rules, ok := holidayRules[country]
	if !ok {
		return nil, fmt.Errorf("no holiday rules for country %q", country)
	}
	return &PublicHolidays{rules: rules, years: map[int]map[string]string{}}, nil
}

func (p *PublicHolidays) IsHoliday(day time.Time) bool {
	_, ok := p.Name(day)
	return ok
}

// Name returns the holiday name for day, if any.
func (p *PublicHolidays) Name(day time.Time) (string, bool) {
	set := p.year(day.Year())
	name, ok := set[DayKey(day)]
	return name, ok
}

func (p *PublicHolidays) year(y int) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if set, ok := p.years[y]; ok {
		return set
	}
	set := make(map[string]string, len(p.rules))
	for _, h := range p.rules {
		actual, _ := h.Calc(y)
		if actual.IsZero() {
			continue
		}
		set[DayKey(actual)] = h.Name
	}
	p.years[y] = set
	return set
}
