package dto

import (
	"encoding/json"
	"time"
)

// Event is the envelope of every message published on the mercure
// exchanges. Data holds the JSON of the message named by Type.
type Event struct {
	Id         string          `json:"id"`
	Type       string          `json:"type"`
	CampaignId string          `json:"campaignId,omitempty"`
	Data       json.RawMessage `json:"data"`
	Metadata   EventMetadata   `json:"metadata"`
}

type EventMetadata struct {
	UberTraceId string    `json:"uber-trace-id,omitempty"`
	AppSource   string    `json:"appSource"`
	PublishedAt time.Time `json:"publishedAt"`
}

// LaunchCampaign is published when a campaign gets a target group and is
// consumed once its send time has been reached.
type LaunchCampaign struct {
	CampaignID    string    `json:"campaignId"`
	SendAt        time.Time `json:"sendAt"`
	CorrelationID string    `json:"correlationId"`
}
