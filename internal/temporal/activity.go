package temporal

import (
	"time"
)

// Archetype is a behavioral label derived from an hour-of-day histogram.
type Archetype string

const (
	ArchetypeNightOwl      Archetype = "night-owl"
	ArchetypeEarlyBird     Archetype = "early-bird"
	ArchetypeBusinessHours Archetype = "business-hours"
	ArchetypeEvening       Archetype = "evening"
	ArchetypeBalanced      Archetype = "balanced"
)

const (
	hoursPerDay = 24
	// dominantSharePercent is the share a bucket must exceed to name the archetype.
	dominantSharePercent = 30.0
	neutralPeakHour      = 12
)

var labels = map[Archetype]string{
	ArchetypeNightOwl:      "Night Owl",
	ArchetypeEarlyBird:     "Early Bird",
	ArchetypeBusinessHours: "Nine to Fiver",
	ArchetypeEvening:       "Evening Coder",
	ArchetypeBalanced:      "Balanced",
}

type bucket struct {
	archetype Archetype
	hours     []int
}

// buckets are evaluated in this order; the order only matters for output.
var buckets = []bucket{
	{archetype: ArchetypeNightOwl, hours: []int{22, 23, 0, 1, 2, 3}},
	{archetype: ArchetypeEarlyBird, hours: []int{4, 5, 6, 7, 8}},
	{archetype: ArchetypeBusinessHours, hours: []int{9, 10, 11, 12, 13, 14, 15, 16, 17}},
	{archetype: ArchetypeEvening, hours: []int{18, 19, 20, 21}},
}

// ActivityTimeAnalysis classifies when a user is active.
type ActivityTimeAnalysis struct {
	Archetype Archetype `json:"archetype"`
	PeakHour  int       `json:"peak_hour"`
	// HourlyDistribution is the percent of events per UTC hour.
	HourlyDistribution [hoursPerDay]float64 `json:"hourly_distribution"`
	Label              string               `json:"label"`
	// BucketShares is the percent of events per named window.
	BucketShares map[Archetype]float64 `json:"bucket_shares"`
	TotalEvents  int                   `json:"total_events"`
}

// Label returns the display label of an archetype.
func (a Archetype) Label() string {
	if label, ok := labels[a]; ok {
		return label
	}
	return string(a)
}

// AnalyzeActivityTime buckets event timestamps by UTC hour. A window whose
// count is the strict maximum and whose share exceeds 30% names the
// archetype; anything else is balanced.
func AnalyzeActivityTime(timestamps []time.Time) ActivityTimeAnalysis {
	analysis := ActivityTimeAnalysis{
		Archetype:    ArchetypeBalanced,
		Label:        ArchetypeBalanced.Label(),
		BucketShares: make(map[Archetype]float64, len(buckets)),
		TotalEvents:  len(timestamps),
	}
	if len(timestamps) == 0 {
		analysis.PeakHour = neutralPeakHour
		for hour := range analysis.HourlyDistribution {
			analysis.HourlyDistribution[hour] = 100.0 / hoursPerDay
		}
		for _, b := range buckets {
			analysis.BucketShares[b.archetype] = float64(len(b.hours)) * 100.0 / hoursPerDay
		}
		return analysis
	}

	var counts [hoursPerDay]int
	for _, ts := range timestamps {
		counts[ts.UTC().Hour()]++
	}

	total := float64(len(timestamps))
	for hour, count := range counts {
		analysis.HourlyDistribution[hour] = float64(count) * 100 / total
		if count > counts[analysis.PeakHour] {
			analysis.PeakHour = hour
		}
	}

	best := -1
	bestCount := 0
	tied := false
	for i, b := range buckets {
		count := 0
		for _, hour := range b.hours {
			count += counts[hour]
		}
		analysis.BucketShares[b.archetype] = float64(count) * 100 / total
		switch {
		case count > bestCount:
			best, bestCount, tied = i, count, false
		case count == bestCount && best >= 0:
			tied = true
		}
	}

	if best >= 0 && !tied && analysis.BucketShares[buckets[best].archetype] > dominantSharePercent {
		analysis.Archetype = buckets[best].archetype
		analysis.Label = analysis.Archetype.Label()
	}
	return analysis
}
