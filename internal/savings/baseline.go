package savings

import "time"

// PeriodBaseline is the expected consumption for one 30 minute slice of a session
type PeriodBaseline struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Baseline         float64   `json:"baseline"`
	ConsumptionItems []Sample  `json:"consumption_items"`
	IsIncomplete     bool      `json:"is_incomplete"`
}

// BaselineResult is the full baseline of a session
type BaselineResult struct {
	CurrentTarget PeriodBaseline   `json:"current_target"`
	CurrentIndex  int              `json:"current_index"`
	TotalBaseline float64          `json:"total_baseline"`
	Baselines     []PeriodBaseline `json:"baselines"`
}

// ComputeTargets calculates the baseline of every period of the event.
// history is expected to hold samples from comparison days only; a sample
// counts towards a period when its start has the same hour and minute.
func ComputeTargets(event Event, history []Sample) []PeriodBaseline {
	expected := TargetCountFor(ClassOf(event.Start))

	var targets []PeriodBaseline
	for period := range ThirtyMinutePeriods(event.Window()) {
		items := []Sample{}
		var total float64
		for _, sample := range history {
			if sample.Start.Hour() == period.Start.Hour() && sample.Start.Minute() == period.Start.Minute() {
				items = append(items, sample)
				total += sample.Consumption
			}
		}

		var baseline float64
		if len(items) != 0 {
			baseline = total / float64(len(items))
		}

		targets = append(targets, PeriodBaseline{
			Start:            period.Start,
			End:              period.End,
			Baseline:         baseline,
			ConsumptionItems: items,
			IsIncomplete:     len(items) != expected,
		})
	}
	return targets
}

// CurrentPeriodIndex returns the index of the period containing now.
// Before the event starts, or when no period matches, it is 0.
func CurrentPeriodIndex(now time.Time, event Event, periods []PeriodBaseline) int {
	if !now.After(event.Start) {
		return 0
	}
	for i, period := range periods {
		if (Window{Start: period.Start, End: period.End}).Contains(now) {
			return i
		}
	}
	return 0
}

// Aggregate assembles the per-period baselines into a result
func Aggregate(baselines []PeriodBaseline, currentIndex int) BaselineResult {
	result := BaselineResult{
		CurrentIndex: currentIndex,
		Baselines:    baselines,
	}
	for _, b := range baselines {
		result.TotalBaseline += b.Baseline
	}
	if currentIndex >= 0 && currentIndex < len(baselines) {
		result.CurrentTarget = baselines[currentIndex]
	}
	return result
}

// GetTarget calculates the baseline for event as seen at now. The second
// return value is false when there is nothing to show: no event, or the
// event has already finished.
func GetTarget(now time.Time, event *Event, history []Sample) (BaselineResult, bool) {
	if event == nil || now.After(event.End) {
		return BaselineResult{}, false
	}

	targets := ComputeTargets(*event, history)
	return Aggregate(targets, CurrentPeriodIndex(now, *event, targets)), true
}
