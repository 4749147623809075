package dto

import "github.com/customeros/mercure/internal/enum"

// OutboundMessage is built fresh for every target; nothing in it is shared
// with the template it was rendered from.
type OutboundMessage struct {
	MessageID   string
	From        string
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []MessageAttachment
}

type MessageAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type SMTPConnection struct {
	Host     string
	Port     int
	Username string
	Password string
	Security enum.EmailSecurity
}
