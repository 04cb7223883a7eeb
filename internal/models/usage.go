package models

import "time"

// ToolUsage is an aggregated count of tool invocations for one day.
type ToolUsage struct {
	Tool  string    `json:"tool"`
	Tier  Tier      `json:"tier"`
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// UsageKey identifies a tool usage bucket.
type UsageKey struct {
	Tool string
	Tier Tier
}
