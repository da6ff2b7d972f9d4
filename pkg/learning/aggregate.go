package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/store"
)

// AggregateDaily scans all response logs created on the given day and upserts
// one metrics row keyed by date. Re-running for the same date overwrites the
// row, never duplicates it.
func (p *Pipeline) AggregateDaily(ctx context.Context, date time.Time) (*store.DailyMetrics, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)

	logs, err := p.store.ListResponseLogsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list response logs: %w", err)
	}

	dm := &store.DailyMetrics{
		Date:                start.Format("2006-01-02"),
		EmotionDistribution: make(map[string]int),
		UrgencyDistribution: make(map[string]int),
	}

	var sumConfidence, sumBefore, sumAfter, sumRating float64
	for _, log := range logs {
		dm.TotalResponses++
		dm.EmotionDistribution[log.Emotion]++
		dm.UrgencyDistribution[log.Urgency]++
		sumConfidence += log.Confidence
		sumBefore += log.RoboticnessBefore
		sumAfter += log.RoboticnessAfter
		if log.CrisisFlag {
			dm.CrisisCount++
		}
		if log.FeedbackRating > 0 {
			dm.RatedCount++
			sumRating += float64(log.FeedbackRating)
		}
	}

	if dm.TotalResponses > 0 {
		n := float64(dm.TotalResponses)
		dm.AvgConfidence = sumConfidence / n
		dm.AvgRoboticnessBefore = sumBefore / n
		dm.AvgRoboticnessAfter = sumAfter / n
		if dm.AvgRoboticnessBefore > 0 {
			dm.ImprovementPct = (dm.AvgRoboticnessBefore - dm.AvgRoboticnessAfter) / dm.AvgRoboticnessBefore * 100
		}
	}
	if dm.RatedCount > 0 {
		dm.AvgRating = sumRating / float64(dm.RatedCount)
	}

	if err := p.store.UpsertDailyMetrics(ctx, dm); err != nil {
		return nil, fmt.Errorf("upsert daily metrics: %w", err)
	}
	logging.Infof("[Learning] daily aggregation %s: %d responses, %d rated, %d crisis",
		dm.Date, dm.TotalResponses, dm.RatedCount, dm.CrisisCount)
	return dm, nil
}
