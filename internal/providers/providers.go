// Package providers holds default IMAP and SMTP endpoints for well-known
// mail providers.
package providers

import "strings"

// Preset holds the default IMAP and SMTP endpoints for a mail provider.
// TLS false means STARTTLS on the submission port.
type Preset struct {
	IMAPHost string
	IMAPPort int
	IMAPTLS  bool
	SMTPHost string
	SMTPPort int
	SMTPTLS  bool
}

// Presets for popular providers, keyed by provider name.
var presets = map[string]Preset{
	"gmail":    {IMAPHost: "imap.gmail.com", IMAPPort: 993, IMAPTLS: true, SMTPHost: "smtp.gmail.com", SMTPPort: 587, SMTPTLS: false},
	"outlook":  {IMAPHost: "outlook.office365.com", IMAPPort: 993, IMAPTLS: true, SMTPHost: "smtp.office365.com", SMTPPort: 587, SMTPTLS: false},
	"yahoo":    {IMAPHost: "imap.mail.yahoo.com", IMAPPort: 993, IMAPTLS: true, SMTPHost: "smtp.mail.yahoo.com", SMTPPort: 465, SMTPTLS: true},
	"icloud":   {IMAPHost: "imap.mail.me.com", IMAPPort: 993, IMAPTLS: true, SMTPHost: "smtp.mail.me.com", SMTPPort: 587, SMTPTLS: false},
	"zoho":     {IMAPHost: "imap.zoho.com", IMAPPort: 993, IMAPTLS: true, SMTPHost: "smtp.zoho.com", SMTPPort: 465, SMTPTLS: true},
	"fastmail": {IMAPHost: "imap.fastmail.com", IMAPPort: 993, IMAPTLS: true, SMTPHost: "smtp.fastmail.com", SMTPPort: 465, SMTPTLS: true},
}

// Address domains mapped onto provider names.
var domains = map[string]string{
	"gmail.com":      "gmail",
	"googlemail.com": "gmail",
	"outlook.com":    "outlook",
	"hotmail.com":    "outlook",
	"live.com":       "outlook",
	"msn.com":        "outlook",
	"yahoo.com":      "yahoo",
	"yahoo.co.uk":    "yahoo",
	"icloud.com":     "icloud",
	"me.com":         "icloud",
	"mac.com":        "icloud",
	"zoho.com":       "zoho",
	"fastmail.com":   "fastmail",
}

// ForProvider returns the endpoint defaults for a provider name.
func ForProvider(provider string) (Preset, bool) {
	preset, ok := presets[strings.ToLower(provider)]
	return preset, ok
}

// ForAddress derives endpoint defaults from an email address domain.
func ForAddress(address string) (Preset, bool) {
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return Preset{}, false
	}
	provider, ok := domains[strings.ToLower(parts[1])]
	if !ok {
		return Preset{}, false
	}
	return ForProvider(provider)
}
