package domain

import (
	"sort"
	"strings"
	"time"
)

// ContentUse is one active session logged with a piece of content, with the strain of
// its attributed workout when the workout record is known.
type ContentUse struct {
	Session LoggedSession
	Strain  *float64
}

// Average is a running mean over Count observations. Mean is zero when Count is zero.
type Average struct {
	Mean  float64
	Count int
}

func (a *Average) add(v float64) {
	a.Count++
	a.Mean += (v - a.Mean) / float64(a.Count)
}

// HintAverages groups confirmed sessions of a content by their activity hint.
type HintAverages struct {
	Hint     string
	Strain   Average
	Exertion Average
	count    int
}

// ContentSummary is what the user has done with one piece of content so far.
type ContentSummary struct {
	ContentID  string
	UseCount   int
	FirstUsed  time.Time
	LastUsed   time.Time
	Last       LoggedSession
	LastStrain *float64
	// Strain and Exertion average confirmed sessions only.
	Strain   Average
	Exertion Average
	// ByHint is ordered by the number of confirmed sessions, most first.
	ByHint []HintAverages
}

// SummarizeContent folds the uses of contentID into a summary. Undone sessions are
// ignored; the bool is false when no active use remains.
func SummarizeContent(contentID string, uses []ContentUse) (ContentSummary, bool) {
	active := make([]ContentUse, 0, len(uses))
	for _, u := range uses {
		if u.Session.Active() {
			active = append(active, u)
		}
	}
	if len(active) == 0 {
		return ContentSummary{}, false
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].Session, active[j].Session
		if !a.LoggedAt.Equal(b.LoggedAt) {
			return a.LoggedAt.After(b.LoggedAt)
		}
		return a.ID > b.ID
	})

	summary := ContentSummary{
		ContentID:  contentID,
		UseCount:   len(active),
		FirstUsed:  active[len(active)-1].Session.LoggedAt,
		LastUsed:   active[0].Session.LoggedAt,
		Last:       active[0].Session,
		LastStrain: active[0].Strain,
	}

	byHint := make(map[string]*HintAverages)
	for _, u := range active {
		if u.Session.Status != StatusConfirmed {
			continue
		}
		var group *HintAverages
		if hint := strings.ToLower(strings.TrimSpace(u.Session.ActivityHint)); hint != "" {
			if group = byHint[hint]; group == nil {
				group = &HintAverages{Hint: hint}
				byHint[hint] = group
			}
			group.count++
		}
		if u.Strain != nil {
			summary.Strain.add(*u.Strain)
			if group != nil {
				group.Strain.add(*u.Strain)
			}
		}
		if u.Session.Exertion != nil {
			summary.Exertion.add(float64(*u.Session.Exertion))
			if group != nil {
				group.Exertion.add(float64(*u.Session.Exertion))
			}
		}
	}

	for _, g := range byHint {
		summary.ByHint = append(summary.ByHint, *g)
	}
	sort.Slice(summary.ByHint, func(i, j int) bool {
		if summary.ByHint[i].count != summary.ByHint[j].count {
			return summary.ByHint[i].count > summary.ByHint[j].count
		}
		return summary.ByHint[i].Hint < summary.ByHint[j].Hint
	})
	return summary, true
}
