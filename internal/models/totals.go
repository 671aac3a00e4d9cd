package models

import "time"

// MacroTotals is the sum of macros over a set of entries.
type MacroTotals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
	Entries  int `json:"entries"`
}

// Add accumulates one entry.
func (t *MacroTotals) Add(e *FoodEntry) {
	t.Calories += e.Calories
	t.Protein += e.Protein
	t.Carbs += e.Carbs
	t.Fat += e.Fat
	t.Entries++
}

// SumSince totals the entries consumed at or after since.
func SumSince(entries []*FoodEntry, since time.Time) MacroTotals {
	var t MacroTotals
	for _, e := range entries {
		if !e.ConsumedAt.Before(since) {
			t.Add(e)
		}
	}
	return t
}

// MacroProgress compares a day's totals against the goals.
type MacroProgress struct {
	Remaining MacroTotals        `json:"remaining"`
	Percent   map[string]float64 `json:"percent"`
}

// Progress computes remaining amounts and percentage of each goal reached.
// Macros without a goal are reported as 0%.
func Progress(goals MacroGoals, totals MacroTotals) MacroProgress {
	return MacroProgress{
		Remaining: MacroTotals{
			Calories: goals.Calories - totals.Calories,
			Protein:  goals.Protein - totals.Protein,
			Carbs:    goals.Carbs - totals.Carbs,
			Fat:      goals.Fat - totals.Fat,
			Entries:  totals.Entries,
		},
		Percent: map[string]float64{
			"calories": percent(totals.Calories, goals.Calories),
			"protein":  percent(totals.Protein, goals.Protein),
			"carbs":    percent(totals.Carbs, goals.Carbs),
			"fat":      percent(totals.Fat, goals.Fat),
		},
	}
}

func percent(value, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	return float64(value) / float64(goal) * 100
}

// StartOfDay returns midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the Sunday starting t's week.
func StartOfWeek(t time.Time) time.Time {
	return StartOfDay(t.AddDate(0, 0, -int(t.Weekday())))
}
