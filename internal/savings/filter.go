package savings

import "time"

// Sample is one measured consumption interval, typically 30 minutes long
type Sample struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Consumption float64   `json:"consumption"`
}

// Window returns the interval the sample covers
func (s Sample) Window() Window {
	return Window{Start: s.Start, End: s.End}
}

// FilterToWindows returns the samples lying fully inside any of the windows.
// A sample inside several windows appears once per window.
func FilterToWindows(history []Sample, windows []ComparisonWindow) []Sample {
	filtered := []Sample{}
	for _, window := range windows {
		for _, sample := range history {
			if ContainsFully(window, sample.Window()) {
				filtered = append(filtered, sample)
			}
		}
	}
	return filtered
}
