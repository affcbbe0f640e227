package models

import "time"

// Limits are the fixed publishing policy constants.
type Limits struct {
	Daily          int `json:"daily"`
	Monthly        int `json:"monthly"`
	ConcurrentLive int `json:"concurrentLive"`
}

// DefaultLimits is the publishing policy applied to every non-admin fingerprint.
var DefaultLimits = Limits{Daily: 1, Monthly: 2, ConcurrentLive: 2}

// Counts are the rolling usage counters for one fingerprint.
type Counts struct {
	PublishesToday     int `json:"publishesToday"`
	PublishedThisMonth int `json:"publishedThisMonth"`
	LiveSites          int `json:"liveSites"`
}

// Usage is the usage report for one fingerprint.
type Usage struct {
	Fingerprint string
	Counts      Counts
	Limits      Limits
	ExpirySoon  bool
	NextResetAt time.Time
}

// Exceeded returns the name of the first limit the counts have reached,
// or the empty string when another publish is allowed.
func (u Usage) Exceeded() string {
	switch {
	case u.Counts.PublishesToday >= u.Limits.Daily:
		return "daily"
	case u.Counts.PublishedThisMonth >= u.Limits.Monthly:
		return "monthly"
	case u.Counts.LiveSites >= u.Limits.ConcurrentLive:
		return "concurrent"
	}
	return ""
}
