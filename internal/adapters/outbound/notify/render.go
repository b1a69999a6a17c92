// Package notify implements the notification sinks: webhook, GitHub issue,
// structured log and a JSON-lines journal.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/domain"
)

var eventHeadlines = map[domain.EventType]string{
	domain.EventChangeDetected:       "change detected",
	domain.EventEvaluationCompleted:  "evaluation completed",
	domain.EventEvaluationFailed:     "evaluation failed",
	domain.EventDecisionTransitioned: "decision updated",
	domain.EventDecisionOverdue:      "decision overdue",
	domain.EventReevaluationDue:      "re-evaluation due",
	domain.EventPipelineCompleted:    "pipeline completed",
	domain.EventPipelineFailed:       "pipeline failed",
	domain.EventComponentCheckFailed: "upstream check failed",
}

// Title is a one-line summary, used as issue title and chat headline.
func Title(e domain.Event) string {
	headline, ok := eventHeadlines[e.Type]
	if !ok {
		headline = string(e.Type)
	}
	subject := e.Component
	if e.ToVersion != "" {
		subject += " " + e.ToVersion
	}
	return fmt.Sprintf("[tollgate] %s: %s", subject, headline)
}

// Text renders the event for plain-text channels.
func Text(e domain.Event) string {
	var b strings.Builder
	b.WriteString(Title(e))
	if e.FromVersion != "" && e.ToVersion != "" {
		fmt.Fprintf(&b, "\n%s -> %s", e.FromVersion, e.ToVersion)
	}
	if e.RiskLevel != "" {
		fmt.Fprintf(&b, "\nrisk %.1f (%s)", e.RiskScore, e.RiskLevel)
	}
	if e.Recommendation != "" {
		fmt.Fprintf(&b, "\nrecommendation: %s", e.Recommendation)
	}
	if e.Deadline != nil && !e.Deadline.IsZero() {
		fmt.Fprintf(&b, "\ndeadline: %s", e.Deadline.Format(time.RFC3339))
	}
	if e.Message != "" {
		b.WriteString("\n" + e.Message)
	}
	return b.String()
}

// Markdown renders the event as an issue body.
func Markdown(e domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", e.Message)
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | `%s` |\n", k, v)
		}
	}
	row("Component", e.Component)
	row("From", e.FromVersion)
	row("To", e.ToVersion)
	if e.RiskLevel != "" {
		row("Risk", fmt.Sprintf("%.1f (%s)", e.RiskScore, e.RiskLevel))
	}
	row("Recommendation", e.Recommendation)
	row("Status", e.Status)
	if e.Deadline != nil && !e.Deadline.IsZero() {
		row("Deadline", e.Deadline.Format(time.RFC3339))
	}
	row("Decision", e.DecisionID)
	row("Evaluation", e.EvaluationID)
	row("Execution", e.ExecutionID)
	if e.DecisionID != "" && e.Type != domain.EventPipelineCompleted {
		fmt.Fprintf(&b, "\nResolve with `tollgate resolve %s --action accept|reject|defer --rationale ... --resolver ...`\n", e.DecisionID)
	}
	return b.String()
}
