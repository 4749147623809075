package config

import (
	"strings"
	"time"

	"github.com/customeros/mercure/internal/enum"
)

type AppConfig struct {
	APIPort            string `env:"PORT,required" envDefault:"12222"`
	APIKey             string `env:"API_KEY,required"`
	RabbitMQURL        string `env:"RABBITMQ_URL"`
	Hostname           string `env:"HOSTNAME" envDefault:"http://localhost:12222"`
	PostDomain         string `env:"POST_DOMAIN" envDefault:"MERCURE_POST_DOMAIN"`
	PostTrackerID      string `env:"POST_TRACKER_ID" envDefault:"MERCURE_POST_TRACKER_ID"`
	NeutralRedirectURL string `env:"NEUTRAL_REDIRECT_URL" envDefault:"https://www.google.com/"`
	TinyURLEndpoint    string `env:"TINYURL_ENDPOINT" envDefault:"https://tinyurl.com/api-create.php"`
}

// PublicHost is HOSTNAME without its trailing slash.
func (a *AppConfig) PublicHost() string {
	return strings.TrimRight(a.Hostname, "/")
}

type DatabaseConfig struct {
	Host            string `env:"MERCURE_POSTGRES_HOST,required"`
	Port            string `env:"MERCURE_POSTGRES_PORT,required"`
	User            string `env:"MERCURE_POSTGRES_USER,required"`
	DBName          string `env:"MERCURE_POSTGRES_DB_NAME,required"`
	Password        string `env:"MERCURE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MERCURE_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MERCURE_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MERCURE_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MERCURE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MERCURE_POSTGRES_SSL_MODE" envDefault:"require"`
}

// SMTPConfig is the process default connection, used when a campaign has no
// override of its own.
type SMTPConfig struct {
	Host         string             `env:"SMTP_HOST" envDefault:"localhost"`
	Port         int                `env:"SMTP_PORT" envDefault:"25"`
	Username     string             `env:"SMTP_USERNAME"`
	Password     string             `env:"SMTP_PASSWORD"`
	Security     enum.EmailSecurity `env:"SMTP_SECURITY" envDefault:"none"`
	Timeout      time.Duration      `env:"SMTP_TIMEOUT" envDefault:"30s"`
	DkimDomain   string             `env:"DKIM_DOMAIN"`
	DkimSelector string             `env:"DKIM_SELECTOR"`
	DkimKeyPath  string             `env:"DKIM_KEY_PATH"`
}

func (s *SMTPConfig) DkimEnabled() bool {
	return s.DkimDomain != "" && s.DkimSelector != "" && s.DkimKeyPath != ""
}

// StorageConfig selects R2 when an account id is set, S3 otherwise.
type StorageConfig struct {
	R2AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	S3Region          string `env:"STORAGE_S3_REGION" envDefault:"eu-west-1"`
	S3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	S3AccessKeySecret string `env:"STORAGE_S3_ACCESS_KEY_SECRET"`
	AttachmentBucket  string `env:"STORAGE_ATTACHMENT_BUCKET" envDefault:"mercure-attachments"`
}

func (s *StorageConfig) UseR2() bool {
	return s.R2AccountID != ""
}

type CloneConfig struct {
	Timeout  time.Duration `env:"CLONE_TIMEOUT" envDefault:"15s"`
	MaxBytes int64         `env:"CLONE_MAX_BYTES" envDefault:"10485760"`
}

type AttachmentConfig struct {
	BuildTimeout time.Duration `env:"ATTACHMENT_BUILD_TIMEOUT" envDefault:"30s"`
	Shell        string        `env:"ATTACHMENT_BUILD_SHELL" envDefault:"sh"`
}
