package enum

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecuritySSL      EmailSecurity = "ssl"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

func GetEmailSecurity(s string) EmailSecurity {
	switch EmailSecurity(s) {
	case EmailSecuritySSL, EmailSecurityTLS, EmailSecurityStartTLS:
		return EmailSecurity(s)
	default:
		return EmailSecurityNone
	}
}
