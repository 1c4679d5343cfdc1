package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"licensewatch/internal/model"
)

// Message is a rendered email ready for a Transport.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Urgency classes used for row styling.
const (
	UrgencyExpired  = "expired"
	UrgencyCritical = "critical"
	UrgencyWarning  = "warning"
	UrgencyNotice   = "notice"
)

// Label renders a day distance: "Expired 2 days ago", "Expires today", "Expires in 1 day".
func Label(days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("Expired %d %s ago", -days, plural(-days))
	case days == 0:
		return "Expires today"
	default:
		return fmt.Sprintf("Expires in %d %s", days, plural(days))
	}
}

func plural(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

func Urgency(days int) string {
	switch {
	case days < 0:
		return UrgencyExpired
	case days <= 7:
		return UrgencyCritical
	case days <= 30:
		return UrgencyWarning
	default:
		return UrgencyNotice
	}
}

// Subject builds the subject line. items must be in selector order, so
// items[0] is the most urgent.
func Subject(items []model.ExpiringLicense) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		it := items[0]
		prefix := "License expiring"
		if it.Expired() {
			prefix = "License expired"
		}
		name := it.Name
		if it.VendorName != "" {
			name = fmt.Sprintf("%s (%s)", it.Name, it.VendorName)
		}
		return fmt.Sprintf("%s: %s - %s", prefix, name, Label(it.DaysUntilExpiry))
	default:
		return fmt.Sprintf("%d licenses need attention, soonest: %s", len(items), Label(items[0].DaysUntilExpiry))
	}
}

type row struct {
	Name     string
	Customer string
	Vendor   string
	Date     string
	Status   string
	Urgency  string
	Style    string
}

type section struct {
	Title string
	Rows  []row
}

type digestView struct {
	Title    string
	Sections []section
}

var rowStyles = map[string]string{
	UrgencyExpired:  "background-color:#fdecea;color:#b71c1c;font-weight:bold;",
	UrgencyCritical: "background-color:#fff4e5;color:#e65100;font-weight:bold;",
	UrgencyWarning:  "background-color:#fffde7;color:#8d6e00;",
	UrgencyNotice:   "",
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<body style="font-family:Arial,Helvetica,sans-serif;color:#212121;">
<h2>{{.Title}}</h2>
{{range .Sections}}
<h3>{{.Title}}</h3>
<table cellpadding="6" cellspacing="0" border="1" style="border-collapse:collapse;border-color:#e0e0e0;">
<thead>
<tr style="background-color:#f5f5f5;"><th align="left">License</th><th align="left">Customer</th><th align="left">Vendor</th><th align="left">Expiration date</th><th align="left">Status</th></tr>
</thead>
<tbody>
{{range .Rows}}<tr class="{{.Urgency}}" style="{{.Style | safeCSS}}"><td>{{.Name}}</td><td>{{.Customer}}</td><td>{{.Vendor}}</td><td>{{.Date}}</td><td>{{.Status}}</td></tr>
{{end}}</tbody>
</table>
{{end}}
<p style="color:#757575;font-size:12px;">You receive this email because license expiration notifications are enabled for your account.</p>
</body>
</html>
`

const textTemplate = `{{.Title}}
{{range .Sections}}
{{.Title}}
{{range .Rows}}- {{.Name}} | {{.Customer}} | {{.Vendor}} | {{.Date}} | {{.Status}}
{{end}}{{end}}`

// Composer renders digests. It is stateless and safe for concurrent use.
type Composer struct {
	html *template.Template
	text *texttemplate.Template
}

func NewComposer() *Composer {
	return &Composer{
		html: template.Must(template.New("digest.html").Funcs(template.FuncMap{
			"safeCSS": func(s string) template.CSS { return template.CSS(s) },
		}).Parse(htmlTemplate)),
		text: texttemplate.Must(texttemplate.New("digest.txt").Parse(textTemplate)),
	}
}

// Compose renders the digest for recipient. Items are expected in selector order.
func (c *Composer) Compose(recipient string, items []model.ExpiringLicense) (*Message, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty digest for %s", recipient)
	}

	view := buildView(items)

	var html bytes.Buffer
	if err := c.html.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	var text bytes.Buffer
	if err := c.text.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}

	return &Message{
		To:      recipient,
		Subject: Subject(items),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

func buildView(items []model.ExpiringLicense) digestView {
	var expired, upcoming []row
	for _, it := range items {
		r := row{
			Name:     it.Name,
			Customer: orDash(it.CustomerName),
			Vendor:   orDash(it.VendorName),
			Date:     it.ExpirationDate.Format("2006-01-02"),
			Status:   Label(it.DaysUntilExpiry),
			Urgency:  Urgency(it.DaysUntilExpiry),
		}
		r.Style = rowStyles[r.Urgency]
		if it.Expired() {
			expired = append(expired, r)
		} else {
			upcoming = append(upcoming, r)
		}
	}

	view := digestView{Title: "License expiration report"}
	if len(expired) > 0 {
		view.Sections = append(view.Sections, section{Title: "Expired", Rows: expired})
	}
	if len(upcoming) > 0 {
		view.Sections = append(view.Sections, section{Title: "Expiring Soon", Rows: upcoming})
	}
	return view
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
