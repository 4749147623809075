package smtp

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
)

// fakeRelay accepts a single session and hands back the DATA payload.
func fakeRelay(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250-localhost")
				_ = tp.PrintfLine("250 8BITMIME")
			case "MAIL", "RCPT", "RSET", "NOOP":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				lines, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				data <- strings.Join(lines, "\n")
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unknown")
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p, data
}

func newTestTransport(t *testing.T, cfg *config.SMTPConfig) *Transport {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	tr, err := NewTransport(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	return tr
}

func testMessage() *dto.OutboundMessage {
	return &dto.OutboundMessage{
		From:    "IT Support <it@corp.example.com>",
		To:      "bob@example.com",
		Subject: "Password expiry",
		Text:    "Your password expires today.",
		HTML:    "<p>Your password expires today.</p>",
		Attachments: []dto.MessageAttachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
		},
	}
}

func TestSend_PlainRelay(t *testing.T) {
	host, port, data := fakeRelay(t)
	tr := newTestTransport(t, &config.SMTPConfig{})

	err := tr.Send(context.Background(), testMessage(), &dto.SMTPConnection{Host: host, Port: port, Security: enum.EmailSecurityNone})
	require.NoError(t, err)

	select {
	case raw := <-data:
		assert.Contains(t, raw, "Subject: Password expiry")
		assert.Contains(t, raw, "bob@example.com")
		assert.Contains(t, raw, "report.pdf")
		assert.Contains(t, strings.ToLower(raw), "message-id:")
	case <-time.After(5 * time.Second):
		t.Fatal("relay received no data")
	}
}

func TestSend_StartTLSRequired(t *testing.T) {
	host, port, _ := fakeRelay(t)
	tr := newTestTransport(t, &config.SMTPConfig{})

	err := tr.Send(context.Background(), testMessage(), &dto.SMTPConnection{Host: host, Port: port, Security: enum.EmailSecurityStartTLS})
	assert.ErrorContains(t, err, "STARTTLS")
}

func TestSend_InvalidRecipient(t *testing.T) {
	tr := newTestTransport(t, &config.SMTPConfig{})
	msg := testMessage()
	msg.To = "not-an-address"

	err := tr.Send(context.Background(), msg, &dto.SMTPConnection{Host: "127.0.0.1", Port: 1})
	assert.ErrorContains(t, err, "invalid recipient")
}

func TestSend_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	tr := newTestTransport(t, &config.SMTPConfig{Timeout: time.Second})
	err = tr.Send(context.Background(), testMessage(), &dto.SMTPConnection{Host: "127.0.0.1", Port: addr.Port})
	assert.ErrorContains(t, err, "failed to connect")
}

func TestBuildMessage_DkimSigned(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "dkim.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(keyPath, pemBytes, 0o600))

	tr := newTestTransport(t, &config.SMTPConfig{DkimDomain: "corp.example.com", DkimSelector: "mercure", DkimKeyPath: keyPath})
	msg := testMessage()
	from, to, err := validateAddresses(msg)
	require.NoError(t, err)

	raw, err := tr.buildMessage(msg, from, to)
	require.NoError(t, err)

	first, err := bufio.NewReader(strings.NewReader(string(raw))).ReadString(':')
	require.NoError(t, err)
	assert.Equal(t, "DKIM-Signature:", first)
	assert.Contains(t, string(raw), "d=corp.example.com")
	assert.Contains(t, string(raw), "s=mercure")
}

func TestNewTransport_BadDkimKey(t *testing.T) {
	_, err := NewTransport(&config.SMTPConfig{DkimDomain: "d", DkimSelector: "s", DkimKeyPath: "/nonexistent"}, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestConnectionFor(t *testing.T) {
	fallback := &dto.SMTPConnection{Host: "relay", Port: 25}
	assert.Same(t, fallback, ConnectionFor(&models.Campaign{}, fallback))

	conn := ConnectionFor(&models.Campaign{SmtpHost: "smtp.corp", SmtpUsername: "u", SmtpSecurity: enum.EmailSecuritySSL}, fallback)
	assert.Equal(t, "smtp.corp", conn.Host)
	assert.Equal(t, 25, conn.Port)
	assert.Equal(t, enum.EmailSecuritySSL, conn.Security)
}
