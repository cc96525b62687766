package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the savings platform
const (
	// Raw half-hourly consumption readings (input)
	TopicRawConsumption = "automation/raw/consumption/+"

	// Saving session announcements (input)
	TopicSavingSessions = "automation/event/saving_session/+"

	// Test mode virtual time configuration (input)
	TopicTimeConfig = "automation/test/time_config"
)

// ConsumptionTriggerTopic is published after a reading has been stored
// Pattern: automation/sensor/consumption/{meter}
func ConsumptionTriggerTopic(meter string) string {
	return fmt.Sprintf("automation/sensor/consumption/%s", meter)
}

// SavingsContextTopic carries the latest baseline snapshot (retained)
// Pattern: automation/context/savings/{meter}
func SavingsContextTopic(meter string) string {
	return fmt.Sprintf("automation/context/savings/%s", meter)
}

// StatusTopic carries the online/offline state of a service (retained)
// Pattern: automation/status/{service}
func StatusTopic(service string) string {
	return fmt.Sprintf("automation/status/%s", service)
}

// LastSegment returns the final level of a topic, e.g. the meter or source name
func LastSegment(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
