package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/utils"
)

// Campaign sends one email template to the targets of its linked groups,
// not before SendAt. A campaign counts as launched once any tracker exists.
type Campaign struct {
	ID              string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name            string                `gorm:"column:name;type:varchar(255);not null" json:"name"`
	EmailTemplateID string                `gorm:"column:email_template_id;type:varchar(50);index;not null" json:"emailTemplateId"`
	EmailTemplate   *EmailTemplate        `gorm:"foreignKey:EmailTemplateID" json:"emailTemplate,omitempty"`
	SendAt          time.Time             `gorm:"column:send_at;type:timestamp;index" json:"sendAt"`
	MinimizeURL     bool                  `gorm:"column:minimize_url;type:boolean;not null" json:"minimizeUrl"`
	SmtpHost        string                `gorm:"column:smtp_host;type:varchar(255)" json:"smtpHost,omitempty"`
	SmtpPort        int                   `gorm:"column:smtp_port;type:integer" json:"smtpPort,omitempty"`
	SmtpUsername    string                `gorm:"column:smtp_username;type:varchar(255)" json:"smtpUsername,omitempty"`
	SmtpPassword    string                `gorm:"column:smtp_password;type:varchar(255)" json:"-"`
	SmtpSecurity    enum.EmailSecurity    `gorm:"column:smtp_security;type:varchar(20);default:none" json:"smtpSecurity,omitempty"`
	TargetGroups    []CampaignTargetGroup `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"targetGroups,omitempty"`
	Trackers        []Tracker             `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time             `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cmp", 16)
	}
	return nil
}

func (c *Campaign) HasCustomSMTP() bool {
	return c.SmtpHost != ""
}

// IsDue reports whether the scheduled send time has been reached.
func (c *Campaign) IsDue(now time.Time) bool {
	return !c.SendAt.After(now)
}

// CampaignTargetGroup links a campaign to a target group. SentAt is written
// once, after the first completed walk over the group.
type CampaignTargetGroup struct {
	ID            string       `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	CampaignID    string       `gorm:"column:campaign_id;type:varchar(50);not null;uniqueIndex:uq_campaign_target_group" json:"campaignId"`
	TargetGroupID string       `gorm:"column:target_group_id;type:varchar(50);not null;uniqueIndex:uq_campaign_target_group" json:"targetGroupId"`
	TargetGroup   *TargetGroup `gorm:"foreignKey:TargetGroupID" json:"targetGroup,omitempty"`
	SentAt        *time.Time   `gorm:"column:sent_at;type:timestamp" json:"sentAt,omitempty"`
	CreatedAt     time.Time    `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (CampaignTargetGroup) TableName() string {
	return "campaign_target_groups"
}

func (l *CampaignTargetGroup) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = utils.GenerateNanoIDWithPrefix("ctg", 16)
	}
	return nil
}
