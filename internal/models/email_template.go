package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mercure/internal/utils"
)

type EmailTemplate struct {
	ID             string       `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name           string       `gorm:"column:name;type:varchar(255);uniqueIndex;not null" json:"name"`
	Subject        string       `gorm:"column:subject;type:varchar(500)" json:"subject"`
	FromEmail      string       `gorm:"column:from_email;type:varchar(255)" json:"fromEmail"`
	TextContent    string       `gorm:"column:text_content;type:text" json:"textContent"`
	HTMLContent    string       `gorm:"column:html_content;type:text" json:"htmlContent"`
	HasOpenTracker bool         `gorm:"column:has_open_tracker;type:boolean;not null" json:"hasOpenTracker"`
	LandingPageID  *string      `gorm:"column:landing_page_id;type:varchar(50);index" json:"landingPageId,omitempty"`
	LandingPage    *LandingPage `gorm:"foreignKey:LandingPageID" json:"landingPage,omitempty"`
	Attachments    []Attachment `gorm:"many2many:email_template_attachments" json:"attachments,omitempty"`
	CreatedAt      time.Time    `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time    `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}

func (e *EmailTemplate) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("tpl", 16)
	}
	return nil
}

// LandingPage html is always stored after form interception.
type LandingPage struct {
	ID          string       `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name        string       `gorm:"column:name;type:varchar(255);uniqueIndex;not null" json:"name"`
	Domain      string       `gorm:"column:domain;type:varchar(255)" json:"domain"`
	HTML        string       `gorm:"column:html;type:text" json:"html"`
	Attachments []Attachment `gorm:"many2many:landing_page_attachments" json:"attachments,omitempty"`
	CreatedAt   time.Time    `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (LandingPage) TableName() string {
	return "landing_pages"
}

func (l *LandingPage) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = utils.GenerateNanoIDWithPrefix("lp", 16)
	}
	return nil
}

// Attachment is either a static file or, when Buildable, a zip archive
// holding a generator.sh build script that produces the file per target.
type Attachment struct {
	ID             string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name           string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	AttachmentName string    `gorm:"column:attachment_name;type:varchar(500)" json:"attachmentName"`
	ContentType    string    `gorm:"column:content_type;type:varchar(255)" json:"contentType"`
	StorageKey     string    `gorm:"column:storage_key;type:varchar(1000)" json:"storageKey"`
	Buildable      bool      `gorm:"column:buildable;type:boolean;not null" json:"buildable"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (Attachment) TableName() string {
	return "attachments"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	return nil
}

// Filename is the name shown to the recipient.
func (a *Attachment) Filename() string {
	if a.AttachmentName != "" {
		return a.AttachmentName
	}
	return a.Name
}

func (a *Attachment) MimeType() string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return "application/octet-stream"
}
