package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/utils"
)

// Tracker is one (campaign, target, kind) engagement row. Its id is the
// opaque token carried by every tracked URL. Slot separates several trackers
// of the same kind for one target (the attachment id for attachment kinds).
type Tracker struct {
	ID          string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	CampaignID  string          `gorm:"column:campaign_id;type:varchar(50);not null;uniqueIndex:uq_tracker_slot,priority:1" json:"campaignId"`
	TargetEmail string          `gorm:"column:target_email;type:varchar(255);not null;uniqueIndex:uq_tracker_slot,priority:2" json:"targetEmail"`
	Key         enum.TrackerKey `gorm:"column:key;type:varchar(50);not null;uniqueIndex:uq_tracker_slot,priority:3;index" json:"key"`
	Slot        string          `gorm:"column:slot;type:varchar(50);not null;default:'';uniqueIndex:uq_tracker_slot,priority:4" json:"slot,omitempty"`
	TargetID    string          `gorm:"column:target_id;type:varchar(50);index;not null" json:"targetId"`
	Target      *Target         `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE" json:"target,omitempty"`
	Value       string          `gorm:"column:value;type:varchar(255)" json:"value"`
	Count       int             `gorm:"column:count;type:integer;not null;default:0" json:"count"`
	Detail      string          `gorm:"column:detail;type:text" json:"detail,omitempty"`
	Infos       []TrackerInfos  `gorm:"foreignKey:TrackerID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;type:timestamp;default:current_timestamp;index" json:"updatedAt"`
}

func (Tracker) TableName() string {
	return "trackers"
}

func (t *Tracker) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoID(32)
	}
	return nil
}

// TrackerInfos is an append-only visit row. Only Raw may be filled in later
// by the browser info callback.
type TrackerInfos struct {
	ID           string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TrackerID    string         `gorm:"column:tracker_id;type:varchar(50);index;not null" json:"trackerId"`
	IP           *string        `gorm:"column:ip;type:varchar(64)" json:"ip,omitempty"`
	ForwardedFor pq.StringArray `gorm:"column:forwarded_for;type:varchar(64)[]" json:"forwardedFor,omitempty"`
	UserAgent    string         `gorm:"column:user_agent;type:text" json:"userAgent,omitempty"`
	Referer      string         `gorm:"column:referer;type:text" json:"referer,omitempty"`
	Raw          string         `gorm:"column:raw;type:text" json:"raw,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp;index" json:"createdAt"`
}

func (TrackerInfos) TableName() string {
	return "tracker_infos"
}

func (i *TrackerInfos) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = utils.GenerateNanoIDWithPrefix("vis", 16)
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = utils.Now()
	}
	return nil
}
