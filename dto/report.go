package dto

import "time"

type CampaignReport struct {
	CampaignID string                    `json:"campaignId"`
	Name       string                    `json:"name"`
	Launched   bool                      `json:"launched"`
	SendAt     time.Time                 `json:"sendAt"`
	Trackers   map[string]map[string]int `json:"trackers"`
	Visits     map[string]int            `json:"visits"`
	VisitRows  int64                     `json:"visitRows"`
	Targets    int                       `json:"targets"`
	Recent     []ReportTracker           `json:"recent"`
	Extra      map[string]interface{}    `json:"extra,omitempty"`
}

type ReportTracker struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	TargetEmail string    `json:"targetEmail"`
	Value       string    `json:"value"`
	Count       int       `json:"count"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
