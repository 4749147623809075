package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

// Transport delivers campaign mails over SMTP. Every network step shares
// one deadline so a stuck relay cannot block the delivery loop.
type Transport struct {
	cfg    *config.SMTPConfig
	log    logger.Logger
	signer *dkimSigner
}

func NewTransport(cfg *config.SMTPConfig, log logger.Logger) (*Transport, error) {
	t := &Transport{cfg: cfg, log: log}
	if cfg.DkimEnabled() {
		signer, err := newDkimSigner(cfg.DkimDomain, cfg.DkimSelector, cfg.DkimKeyPath)
		if err != nil {
			return nil, err
		}
		t.signer = signer
	}
	return t, nil
}

// DefaultConnection is the process wide relay.
func (t *Transport) DefaultConnection() *dto.SMTPConnection {
	return &dto.SMTPConnection{
		Host:     t.cfg.Host,
		Port:     t.cfg.Port,
		Username: t.cfg.Username,
		Password: t.cfg.Password,
		Security: enum.GetEmailSecurity(t.cfg.Security.String()),
	}
}

// ConnectionFor returns the campaign override when it has one.
func ConnectionFor(campaign *models.Campaign, fallback *dto.SMTPConnection) *dto.SMTPConnection {
	if campaign == nil || !campaign.HasCustomSMTP() {
		return fallback
	}
	port := campaign.SmtpPort
	if port == 0 {
		port = 25
	}
	return &dto.SMTPConnection{
		Host:     campaign.SmtpHost,
		Port:     port,
		Username: campaign.SmtpUsername,
		Password: campaign.SmtpPassword,
		Security: enum.GetEmailSecurity(campaign.SmtpSecurity.String()),
	}
}

func (t *Transport) Send(ctx context.Context, message *dto.OutboundMessage, conn *dto.SMTPConnection) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPTransport.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_server", conn.Host, "smtp_port", conn.Port, "security", conn.Security.String())

	from, to, err := validateAddresses(message)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	raw, err := t.buildMessage(message, from, to)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err = t.deliver(ctx, conn, from.Address, to.Address, raw); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func validateAddresses(message *dto.OutboundMessage) (*mail.Address, *mail.Address, error) {
	from, err := mail.ParseAddress(message.From)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid from address %q", message.From)
	}
	to, err := mail.ParseAddress(message.To)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid recipient %q", message.To)
	}
	if v := mailvalidate.ValidateEmailSyntax(to.Address); !v.IsValid {
		return nil, nil, fmt.Errorf("recipient %s is not a valid email address", to.Address)
	}
	if v := mailvalidate.ValidateEmailSyntax(from.Address); !v.IsValid {
		return nil, nil, fmt.Errorf("from address %s is not a valid email address", from.Address)
	}
	if message.Text == "" && message.HTML == "" {
		return nil, nil, fmt.Errorf("email must have either text or HTML content")
	}
	return from, to, nil
}

// buildMessage renders the RFC 5322 message, DKIM signed when configured.
func (t *Transport) buildMessage(message *dto.OutboundMessage, from, to *mail.Address) ([]byte, error) {
	messageID := message.MessageID
	if messageID == "" {
		messageID = utils.GenerateMessageID(utils.ExtractDomainFromEmail(from.Address), "")
	}

	builder := enmime.Builder().
		From(from.Name, from.Address).
		To(to.Name, to.Address).
		Subject(message.Subject).
		Date(utils.Now()).
		Header("Message-ID", messageID)
	if message.Text != "" {
		builder = builder.Text([]byte(message.Text))
	}
	if message.HTML != "" {
		builder = builder.HTML([]byte(message.HTML))
	}
	for _, a := range message.Attachments {
		builder = builder.AddAttachment(a.Content, a.ContentType, a.Filename)
	}

	root, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build message")
	}
	var buf bytes.Buffer
	if err = root.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}

	if t.signer == nil {
		return buf.Bytes(), nil
	}
	return t.signer.sign(buf.Bytes())
}

func (t *Transport) deliver(ctx context.Context, conn *dto.SMTPConnection, from, to string, raw []byte) error {
	addr := net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tlsConfig := &tls.Config{ServerName: conn.Host}

	dialer := &net.Dialer{Deadline: deadline}
	var netConn net.Conn
	var err error
	if conn.Security == enum.EmailSecuritySSL {
		netConn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	defer netConn.Close()
	if err = netConn.SetDeadline(deadline); err != nil {
		return err
	}

	client, err := smtp.NewClient(netConn, conn.Host)
	if err != nil {
		return errors.Wrap(err, "failed to create SMTP client")
	}
	defer client.Close()

	if conn.Security != enum.EmailSecuritySSL {
		hasStartTLS, _ := client.Extension("STARTTLS")
		switch {
		case hasStartTLS:
			if err = client.StartTLS(tlsConfig); err != nil {
				return errors.Wrap(err, "failed to start TLS")
			}
		case conn.Security == enum.EmailSecurityStartTLS:
			return errors.New("SMTP server does not support STARTTLS")
		}
	}

	if conn.Username != "" {
		auth := smtp.PlainAuth("", conn.Username, conn.Password, conn.Host)
		if err = client.Auth(auth); err != nil {
			return errors.Wrap(err, "SMTP authentication failed")
		}
	}

	if err = client.Mail(from); err != nil {
		return errors.Wrap(err, "SMTP MAIL command failed")
	}
	if err = client.Rcpt(to); err != nil {
		return errors.Wrapf(err, "SMTP RCPT command failed for %s", to)
	}

	dataWriter, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "SMTP DATA command failed")
	}
	if _, err = dataWriter.Write(raw); err != nil {
		return errors.Wrap(err, "failed to write email data")
	}
	if err = dataWriter.Close(); err != nil {
		return errors.Wrap(err, "failed to close data writer")
	}

	return client.Quit()
}
