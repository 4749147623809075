package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mercure/internal/utils"
)

type TargetGroup struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Targets   []Target  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"targets,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (TargetGroup) TableName() string {
	return "target_groups"
}

func (g *TargetGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = utils.GenerateNanoIDWithPrefix("grp", 16)
	}
	return nil
}

type Target struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	GroupID   string `gorm:"column:group_id;type:varchar(50);index;not null" json:"groupId"`
	Email     string `gorm:"column:email;type:varchar(255);not null" json:"email"`
	FirstName string `gorm:"column:first_name;type:varchar(255)" json:"firstName"`
	LastName  string `gorm:"column:last_name;type:varchar(255)" json:"lastName"`
}

func (Target) TableName() string {
	return "targets"
}

func (t *Target) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tgt", 16)
	}
	return nil
}
