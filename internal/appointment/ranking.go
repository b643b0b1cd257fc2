package appointment

import (
	"sort"
	"time"
)

// MaxHourSuggestions caps the number of start times offered to a patient.
const MaxHourSuggestions = 5

// HourRanker picks which valid window starts to present for a day.
// Candidates arrive in chronological order and are all bookable.
type HourRanker interface {
	Rank(candidates []time.Time, rc RankContext) []time.Time
}

type RankContext struct {
	Duration time.Duration
	// Appointments are the blocking appointments of the same day.
	Appointments []Appointment
	Location     *time.Location
}

// GapRanker prefers starts that pack visits against existing appointments,
// with a mild preference for mornings and late afternoons.
type GapRanker struct {
	Limit int
}

const (
	scoreAfterVisit    = 50
	scoreBeforeVisit   = 40
	scoreMorning       = 10
	scoreLateAfternoon = 10
)

func (r GapRanker) Rank(candidates []time.Time, rc RankContext) []time.Time {
	limit := r.Limit
	if limit <= 0 {
		limit = MaxHourSuggestions
	}
	loc := rc.Location
	if loc == nil {
		loc = time.UTC
	}

	nice := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		if niceStart(c.In(loc), rc.Duration) {
			nice = append(nice, c)
		}
	}
	// keep the day offerable when only odd offsets remain
	if len(nice) == 0 {
		nice = candidates
	}
	if len(nice) == 0 {
		return nil
	}

	if len(rc.Appointments) == 0 && rc.Duration == 30*time.Minute {
		return spread(nice, limit)
	}

	type scored struct {
		start time.Time
		score int
	}
	ranked := make([]scored, 0, len(nice))
	for _, c := range nice {
		ranked = append(ranked, scored{start: c, score: score(c, rc.Duration, rc.Appointments, loc)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].start.Before(ranked[j].start)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]time.Time, len(ranked))
	for i, r := range ranked {
		out[i] = r.start
	}
	sortTimes(out)
	return out
}

// niceStart restricts start minutes by visit length: hour visits on the hour,
// half hour visits on :00/:30, 45 minute visits on :00/:15.
func niceStart(t time.Time, d time.Duration) bool {
	m := t.Minute()
	switch d {
	case 60 * time.Minute:
		return m == 0
	case 30 * time.Minute:
		return m == 0 || m == 30
	case 45 * time.Minute:
		return m == 0 || m == 15
	default:
		return true
	}
}

func score(start time.Time, d time.Duration, appts []Appointment, loc *time.Location) int {
	end := start.Add(d)
	total := 0
	for _, a := range appts {
		if !a.Status.Blocking() {
			continue
		}
		if a.End.Equal(start) {
			total += scoreAfterVisit
		}
		if a.Start.Equal(end) {
			total += scoreBeforeVisit
		}
	}
	hour := start.In(loc).Hour()
	if hour <= 12 {
		total += scoreMorning
	}
	if hour >= 16 {
		total += scoreLateAfternoon
	}
	return total
}

// spread samples an empty day evenly: first, quartiles, middle and last.
func spread(candidates []time.Time, limit int) []time.Time {
	n := len(candidates)
	indexes := []int{0, int(float64(n) * 0.25), n / 2, int(float64(n) * 0.75), n - 1}

	seen := make(map[int]bool, len(indexes))
	out := make([]time.Time, 0, len(indexes))
	for _, idx := range indexes {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, candidates[idx])
	}
	sortTimes(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
