package sessions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/jeeves-savings/internal/savings"
)

// schedule is the layout of a sessions file:
//
//	sessions:
//	  - id: "2024-01-15"
//	    start: "2024-01-15T16:00:00Z"
//	    end: "2024-01-15T17:00:00Z"
//	    octopoints_per_kwh: 1800
type schedule struct {
	Sessions []sessionRecord `yaml:"sessions"`
}

// LoadScheduleFile reads the saving sessions listed in a YAML file
func LoadScheduleFile(path string) ([]savings.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions file: %w", err)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes the YAML sessions document
func ParseSchedule(data []byte) ([]savings.Event, error) {
	var s schedule
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse sessions file: %w", err)
	}

	events := make([]savings.Event, 0, len(s.Sessions))
	seen := make(map[string]bool, len(s.Sessions))
	for i, record := range s.Sessions {
		event, err := record.toEvent()
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		if seen[event.ID] {
			return nil, fmt.Errorf("session %d: duplicate id %q", i, event.ID)
		}
		seen[event.ID] = true
		events = append(events, event)
	}

	sortByStart(events)
	return events, nil
}
