package notify

import (
	"bytes"
	"html/template"
)

const (
	KindNewReport      = "newReport"
	KindStatusUpdate   = "statusUpdate"
	KindReportResolved = "reportResolved"
)

const layout = `{{define "footer"}}<p><a href="{{.Link}}">View report</a></p>
<p style="color:#888">Community Connect</p>{{end}}`

var templates = template.Must(template.Must(template.New("layout").Parse(layout)).New(KindNewReport).Parse(`
<h2>New report submitted</h2>
<p><strong>{{.Title}}</strong></p>
<p>{{.Description}}</p>
<ul>
<li>Category: {{.Category}}</li>
<li>Priority: {{.Priority}}</li>
<li>Location: {{.Address}}</li>
<li>Reported by: {{.Reporter}}</li>
</ul>
{{template "footer" .}}`))

func init() {
	template.Must(templates.New(KindStatusUpdate).Parse(`
<h2>Your report was updated</h2>
<p><strong>{{.Title}}</strong></p>
<p>Status changed from <em>{{.OldStatus}}</em> to <em>{{.NewStatus}}</em>.</p>
{{if .Assignee}}<p>Assigned to: {{.Assignee}}</p>{{end}}
{{template "footer" .}}`))
	template.Must(templates.New(KindReportResolved).Parse(`
<h2>Your report has been resolved</h2>
<p><strong>{{.Title}}</strong> at {{.Address}} is now marked as resolved.</p>
<p>Thank you for helping improve the community.</p>
{{template "footer" .}}`))
}

type emailData struct {
	Title       string
	Description string
	Category    string
	Priority    string
	Address     string
	Reporter    string
	OldStatus   string
	NewStatus   string
	Assignee    string
	Link        string
}

func render(kind string, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, kind, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
