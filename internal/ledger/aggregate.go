package ledger

import (
	"sort"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// Analyze computes totals, breakdowns and a daily series for entries within
// [since, until).
func Analyze(entries []model.CostEntry, since, until time.Time) model.CostAnalysis {
	filtered := FilterByTime(entries, since, until)

	a := model.CostAnalysis{
		Since: since,
		Until: until,
		Days:  dayCount(since, until),
	}
	for _, e := range filtered {
		a.TotalCost += e.Amount
		a.Calls++
	}
	if a.Days > 0 {
		a.AverageDaily = a.TotalCost / float64(a.Days)
	}
	if a.Calls > 0 {
		a.CostPerCall = a.TotalCost / float64(a.Calls)
	}

	a.ByModel = Breakdown(filtered, func(e model.CostEntry) string { return e.Model })
	a.ByRole = Breakdown(filtered, func(e model.CostEntry) string { return orUnknown(e.Role) })
	a.ByTier = Breakdown(filtered, func(e model.CostEntry) string { return orUnknown(string(e.Tier)) })
	a.Daily = AggregateDays(filtered, since, until)
	return a
}

// Breakdown groups entries by key and computes each group's share of the
// total amount, most expensive first.
func Breakdown(entries []model.CostEntry, key func(model.CostEntry) string) []model.SpendShare {
	groups := make(map[string]*model.SpendShare)
	var total float64
	for _, e := range entries {
		k := key(e)
		s, ok := groups[k]
		if !ok {
			s = &model.SpendShare{Key: k}
			groups[k] = s
		}
		s.Calls++
		s.InputTokens += e.InputTokens
		s.OutputTokens += e.OutputTokens
		s.Amount += e.Amount
		total += e.Amount
	}

	out := make([]model.SpendShare, 0, len(groups))
	for _, s := range groups {
		if total > 0 {
			s.SharePercent = s.Amount / total * 100
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// AggregateDays computes per-day totals, filling every day in the range so
// gaps show as zeros. Most recent first.
func AggregateDays(entries []model.CostEntry, since, until time.Time) []model.DailySpend {
	dayMap := make(map[string]*model.DailySpend)
	loc := since.Location()
	if since.IsZero() {
		loc = time.Local
	}

	for _, e := range entries {
		ts := e.Timestamp.In(loc)
		key := ts.Format("2006-01-02")
		ds, ok := dayMap[key]
		if !ok {
			ds = &model.DailySpend{Date: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)}
			dayMap[key] = ds
		}
		ds.Calls++
		ds.InputTokens += e.InputTokens
		ds.OutputTokens += e.OutputTokens
		ds.Amount += e.Amount
	}

	if !since.IsZero() && !until.IsZero() {
		s := since.In(loc)
		day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		for day.Before(until) {
			key := day.Format("2006-01-02")
			if _, ok := dayMap[key]; !ok {
				dayMap[key] = &model.DailySpend{Date: day}
			}
			day = day.AddDate(0, 0, 1)
		}
	}

	days := make([]model.DailySpend, 0, len(dayMap))
	for _, ds := range dayMap {
		days = append(days, *ds)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})
	return days
}

// FilterByTime returns entries whose timestamp falls within [since, until).
func FilterByTime(entries []model.CostEntry, since, until time.Time) []model.CostEntry {
	if since.IsZero() && until.IsZero() {
		return entries
	}
	var out []model.CostEntry
	for _, e := range entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && !e.Timestamp.Before(until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func dayCount(since, until time.Time) int {
	if since.IsZero() || until.IsZero() || !until.After(since) {
		return 0
	}
	n := 0
	for day := since; day.Before(until); day = day.AddDate(0, 0, 1) {
		n++
	}
	return n
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
