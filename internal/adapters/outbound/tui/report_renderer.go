package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
)

// RenderScan summarises a detection cycle.
func RenderScan(r application.ScanReport) string {
	var b strings.Builder
	stats := dimStyle.Render(fmt.Sprintf("%d checked  ·  %d suppressed  ·  %d skipped  ·  ", r.Checked, r.Suppressed, r.Skipped))
	changes := passStyle.Render(fmt.Sprintf("%d changes", r.Changes))
	if r.Changes == 0 {
		changes = dimStyle.Render("no changes")
	}
	b.WriteString(boxStyle.Render(headerStyle.Render("Scan") + "\n\n" + stats + changes))
	b.WriteString("\n")

	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "\n  %s %s\n", sectionHeaderStyle.Render("Failed checks"), dimStyle.Render(fmt.Sprintf("(%d)", len(r.Failed))))
		for _, f := range r.Failed {
			fmt.Fprintf(&b, "    %s %s  %s\n", failStyle.Render("●"), f.ComponentID, faintStyle.Render(f.Error))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// RenderSweep summarises a deadline and reminder sweep.
func RenderSweep(r application.SweepReport) string {
	overdue := dimStyle.Render("0 overdue")
	if r.Overdue > 0 {
		overdue = failStyle.Render(fmt.Sprintf("%d overdue", r.Overdue))
	}
	return fmt.Sprintf("\n  %s  %s  %s\n\n", titleStyle.Render("Sweep"), overdue,
		dimStyle.Render(fmt.Sprintf("%d re-evaluations", r.Reevaluations)))
}

// RenderSync summarises a component seed sync.
func RenderSync(r application.SyncReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s  %s  %s\n", titleStyle.Render("Sync"),
		passStyle.Render(fmt.Sprintf("%d added", len(r.Added))),
		dimStyle.Render(fmt.Sprintf("%d existing", len(r.Existing))))
	for _, id := range r.Added {
		fmt.Fprintf(&b, "    %s %s\n", passStyle.Render("+"), id)
	}
	b.WriteString("\n")
	return b.String()
}

// RenderComponents lists the registry.
func RenderComponents(components []domain.Component) string {
	if len(components) == 0 {
		return "\n  " + dimStyle.Render("No components registered.") + "\n\n"
	}
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("Components") + "\n  " + separatorLine + "\n\n")
	for _, c := range components {
		dot := passStyle.Render("●")
		if c.Status == domain.ComponentPaused {
			dot = skipStyle.Render("○")
		}
		version := c.Version
		if version == "" {
			version = "·"
		}
		line := fmt.Sprintf("  %s %s %s", dot, titleStyle.Render(padRight(c.ID, 20)), padRight(version, 12))
		if c.LatestSeen != "" && c.LatestSeen != c.Version {
			line += warnStyle.Render("latest " + c.LatestSeen)
		}
		b.WriteString(line + "\n")
		checked := "never checked"
		if !c.LastCheckedAt.IsZero() {
			checked = "checked " + c.LastCheckedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "      %s  %s\n", faintStyle.Render(c.Upstream), dimStyle.Render(checked))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderExecutions lists pipeline executions.
func RenderExecutions(execs []domain.PipelineExecution) string {
	if len(execs) == 0 {
		return "\n  " + dimStyle.Render("No pipeline executions.") + "\n\n"
	}
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("Pipelines") + "\n  " + separatorLine + "\n\n")
	for _, p := range execs {
		fmt.Fprintf(&b, "  %s %s\n", titleStyle.Render(p.ComponentID), dimStyle.Render(p.Version))
		renderExecution(&b, p)
	}
	b.WriteString("\n")
	return b.String()
}

// RenderHistory lists archived decisions, newest first.
func RenderHistory(entries []domain.ArchiveEntry) string {
	if len(entries) == 0 {
		return "\n  " + dimStyle.Render("No archived decisions.") + "\n\n"
	}
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("Decision history") + "\n  " + separatorLine + "\n\n")
	for _, e := range entries {
		d := e.Decision
		fmt.Fprintf(&b, "  %s  %s %s  %s\n",
			dimStyle.Render(e.ArchivedAt.Format("2006-01-02")),
			titleStyle.Render(padRight(d.ComponentID, 20)),
			padRight(d.Version, 12),
			statusText(d.Status),
		)
		if d.ResolvedBy != "" {
			fmt.Fprintf(&b, "              %s  %s\n", dimStyle.Render(d.ResolvedBy), faintStyle.Render(d.Rationale))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// RenderEvents lists journal entries, oldest first.
func RenderEvents(events []domain.Event) string {
	if len(events) == 0 {
		return "\n  " + dimStyle.Render("Journal is empty.") + "\n\n"
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, e := range events {
		fmt.Fprintf(&b, "  %s  %s %s  %s\n",
			dimStyle.Render(e.OccurredAt.Format(time.RFC3339)),
			padRight(string(e.Type), 24),
			titleStyle.Render(e.Component),
			faintStyle.Render(e.Message))
	}
	b.WriteString("\n")
	return b.String()
}
