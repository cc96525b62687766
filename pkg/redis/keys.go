package redis

import "fmt"

// ConsumptionKey returns the key for half-hourly consumption samples (sorted set)
// Pattern: sensor:consumption:{meter}
func ConsumptionKey(meter string) string {
	return fmt.Sprintf("sensor:consumption:%s", meter)
}

// SavingsContextKey returns the key for the latest baseline snapshot (string)
// Pattern: context:savings:{meter}
func SavingsContextKey(meter string) string {
	return fmt.Sprintf("context:savings:%s", meter)
}
