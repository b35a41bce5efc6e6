package notifier

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

// ResultEmailData fills the released-result email.
type ResultEmailData struct {
	StudentName    string
	ExamTitle      string
	Score          float64
	CorrectCount   int
	TotalQuestions int
	SubmittedAt    time.Time
	DashboardURL   string
}

// ReviewEmailData fills the review-verdict email sent to the institute.
type ReviewEmailData struct {
	InstituteName string
	ExamTitle     string
	Approved      bool
	Comment       string
}

var resultTmpl = template.Must(template.New("result").Parse(`
<div style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
  <h2>Exam Results Available</h2>
  <p>Hi {{.StudentName}},</p>
  <p>Your results for <strong>{{.ExamTitle}}</strong> have been released.</p>
  <table style="border-collapse: collapse;">
    <tr><td style="padding: 4px 12px 4px 0;">Score</td><td><strong>{{printf "%.2f" .Score}}%</strong></td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Correct answers</td><td>{{.CorrectCount}} / {{.TotalQuestions}}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Submitted</td><td>{{.SubmittedAt.Format "Jan 2, 2006 15:04 MST"}}</td></tr>
  </table>
  <p><a href="{{.DashboardURL}}">View full results</a></p>
</div>`))

var reviewTmpl = template.Must(template.New("review").Parse(`
<div style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
  <h2>Exam Review {{if .Approved}}Approved{{else}}Rejected{{end}}</h2>
  <p>Hi {{.InstituteName}},</p>
  <p>Your exam <strong>{{.ExamTitle}}</strong> has been
  {{if .Approved}}approved and published for students{{else}}rejected{{end}}.</p>
  {{if .Comment}}<p>Reviewer comment: {{.Comment}}</p>{{end}}
</div>`))

// RenderResultEmail renders the released-result email body.
func RenderResultEmail(data ResultEmailData) (subject, body string, err error) {
	var buf strings.Builder
	if err := resultTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render result email: %w", err)
	}
	return fmt.Sprintf("Exam Results Available - %s", data.ExamTitle), buf.String(), nil
}

// RenderReviewEmail renders the review-verdict email body.
func RenderReviewEmail(data ReviewEmailData) (subject, body string, err error) {
	var buf strings.Builder
	if err := reviewTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render review email: %w", err)
	}
	verdict := "Approved"
	if !data.Approved {
		verdict = "Rejected"
	}
	return fmt.Sprintf("Exam %s - %s", verdict, data.ExamTitle), buf.String(), nil
}
