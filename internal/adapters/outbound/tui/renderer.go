// Package tui renders governance views for the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
)

// ── warm palette ──
var (
	accent    = lipgloss.Color("#D97706") // amber
	fg        = lipgloss.Color("#E8E6E3")
	dim       = lipgloss.Color("#6B7280")
	faint     = lipgloss.Color("#3F3F46")
	success   = lipgloss.Color("#22C55E")
	danger    = lipgloss.Color("#EF4444")
	warning   = lipgloss.Color("#F59E0B")
	lime      = lipgloss.Color("#A3E635")
	skipColor = lipgloss.Color("#4B5563")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Align(lipgloss.Center)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 4).
			Align(lipgloss.Center).
			Width(68)

	tierColors = map[domain.RiskTier]lipgloss.Color{
		domain.TierVeryLow: success,
		domain.TierLow:     lime,
		domain.TierMedium:  warning,
		domain.TierHigh:    danger,
	}

	dimStyle           = lipgloss.NewStyle().Foreground(dim)
	faintStyle         = lipgloss.NewStyle().Foreground(faint)
	passStyle          = lipgloss.NewStyle().Foreground(success)
	failStyle          = lipgloss.NewStyle().Foreground(danger)
	warnStyle          = lipgloss.NewStyle().Foreground(warning)
	skipStyle          = lipgloss.NewStyle().Foreground(skipColor)
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(fg)
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle          = lipgloss.NewStyle().Foreground(dim).Italic(true)
	separatorLine      = faintStyle.Render(strings.Repeat("─", 64))
)

// RenderPending lists open decisions with their time to deadline.
func RenderPending(decisions []domain.Decision, now time.Time) string {
	if len(decisions) == 0 {
		return "\n  " + passStyle.Render("No pending decisions.") + "\n\n"
	}

	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("Pending decisions") + "  " +
		dimStyle.Render(fmt.Sprintf("(%d)", len(decisions))) + "\n")
	b.WriteString("  " + separatorLine + "\n\n")

	for _, d := range decisions {
		status := warnStyle.Render("pending")
		if d.Status == domain.StatusOverdue {
			status = failStyle.Bold(true).Render("OVERDUE")
		}
		fmt.Fprintf(&b, "  %s %s %s  %s\n",
			tierDot(d.RiskTier),
			titleStyle.Render(padRight(d.ComponentID, 20)),
			padRight(d.FromVersion+" → "+d.Version, 22),
			status,
		)
		fmt.Fprintf(&b, "      %s  %s  %s\n",
			riskText(d.RiskScore, d.RiskTier),
			dimStyle.Render(string(d.Recommendation)),
			dimStyle.Render(deadlineText(d.Deadline, now)),
		)
		fmt.Fprintf(&b, "      %s\n", faintStyle.Render(d.ID))
	}
	b.WriteString("\n  " + hintStyle.Render("Resolve with: tollgate resolve <id> --action accept|reject|defer") + "\n")
	return b.String()
}

// RenderInspection shows a decision with its evaluation and rollouts.
func RenderInspection(in application.Inspection, now time.Time) string {
	d, e := in.Decision, in.Evaluation
	var b strings.Builder

	title := headerStyle.Render(d.ComponentID)
	versions := titleStyle.Render(d.FromVersion + " → " + d.Version)
	status := statusText(d.Status)
	b.WriteString(boxStyle.Render(title + "\n" + versions + "\n\n" + status + "  " + riskText(d.RiskScore, d.RiskTier)))
	b.WriteString("\n\n")

	kv(&b, "decision", d.ID)
	kv(&b, "evaluation", e.ID)
	kv(&b, "change", string(e.Change.Kind))
	kv(&b, "created", d.CreatedAt.Format(time.RFC3339))
	kv(&b, "deadline", d.Deadline.Format(time.RFC3339)+"  "+deadlineText(d.Deadline, now))
	if d.ResolvedBy != "" {
		kv(&b, "resolved by", d.ResolvedBy)
		kv(&b, "rationale", d.Rationale)
	}
	if d.Supersedes != "" {
		kv(&b, "supersedes", d.Supersedes)
	}
	if e.Failure != "" {
		kv(&b, "failure", failStyle.Render(e.Failure))
	}
	if len(e.Change.Advisories) > 0 {
		b.WriteString("\n  " + sectionHeaderStyle.Render("Advisories") + "\n")
		for _, a := range e.Change.Advisories {
			fmt.Fprintf(&b, "    %s %s %s  %s\n", failStyle.Render("●"), a.ID, dimStyle.Render(a.Severity), faintStyle.Render(a.Summary))
		}
	}

	if e.Assessment != nil && e.Analysis != nil && e.Recommendation != nil {
		renderAssessment(&b, application.ChangeAssessment{
			Analysis: *e.Analysis, Assessment: *e.Assessment, Recommendation: *e.Recommendation,
		})
	}

	if len(in.Executions) > 0 {
		b.WriteString("\n  " + sectionHeaderStyle.Render("Pipeline") + "\n")
		for _, p := range in.Executions {
			renderExecution(&b, p)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// RenderAssessment renders analysis, scores and recommendation of a change.
func RenderAssessment(change domain.VersionChange, a application.ChangeAssessment) string {
	var b strings.Builder
	title := headerStyle.Render(change.ComponentID)
	versions := titleStyle.Render(change.FromVersion + " → " + change.ToVersion)
	b.WriteString(boxStyle.Render(title + "\n" + versions + "\n\n" + riskText(a.Assessment.RiskScore, a.Assessment.Tier)))
	b.WriteString("\n")
	renderAssessment(&b, a)
	b.WriteString("\n")
	return b.String()
}

func renderAssessment(b *strings.Builder, a application.ChangeAssessment) {
	an := a.Analysis
	b.WriteString("\n  " + sectionHeaderStyle.Render("Analysis") + "\n")
	fmt.Fprintf(b, "    %s\n", dimStyle.Render(fmt.Sprintf("%d files  ·  +%d −%d  ·  %d commits",
		an.Stats.FilesChanged, an.Stats.Additions, an.Stats.Deletions, an.Stats.Commits)))
	if flags := impactList(an.Impact); len(flags) > 0 {
		fmt.Fprintf(b, "    impact: %s\n", strings.Join(flags, ", "))
	}
	for _, rf := range an.RiskFiles {
		style := warnStyle
		if rf.Severity == domain.SeverityHigh {
			style = failStyle
		}
		fmt.Fprintf(b, "    %s %s  %s\n", style.Render("●"), rf.Path, faintStyle.Render(rf.Pattern))
	}

	b.WriteString("\n  " + sectionHeaderStyle.Render("Scores") + "  " +
		dimStyle.Render(fmt.Sprintf("profile %s  ·  weighted %.1f  ·  confidence %.2f",
			a.Assessment.Profile, a.Assessment.WeightedTotal, a.Assessment.Confidence)) + "\n")
	for _, ds := range a.Assessment.Dimensions {
		fmt.Fprintf(b, "    %s %s %s  %s\n",
			padRight(string(ds.Dimension), 12),
			scoreBar(ds.Score, 20),
			lipgloss.NewStyle().Bold(true).Foreground(scoreColor(ds.Score)).Render(fmt.Sprintf("%2d", ds.Score)),
			dimStyle.Render(fmt.Sprintf("%.0f%%", ds.Weight*100)),
		)
		for _, r := range ds.Reasons {
			fmt.Fprintf(b, "      %s\n", faintStyle.Render(r))
		}
	}

	rec := a.Recommendation
	b.WriteString("\n  " + sectionHeaderStyle.Render("Recommendation") + "  " + titleStyle.Render(string(rec.Action)) + "\n")
	fmt.Fprintf(b, "    %s\n", dimStyle.Render(rec.Reason))
	for i, s := range rec.Scenarios {
		fmt.Fprintf(b, "    %d. %s  %s\n", i+1, titleStyle.Render(s.Name),
			dimStyle.Render(fmt.Sprintf("effort %s · %s", s.Effort, s.Timeline)))
	}
}

func renderExecution(b *strings.Builder, p domain.PipelineExecution) {
	label := fmt.Sprintf("attempt %d", p.Attempt)
	if p.DryRun {
		label += ", dry run"
	}
	fmt.Fprintf(b, "    %s %s  %s\n", pipelineDot(p.Status), p.ID, dimStyle.Render(label))
	for _, st := range p.Stages {
		line := fmt.Sprintf("      %s %s", stageDot(st.Status), padRight(st.Name, 20))
		if st.Duration > 0 {
			line += dimStyle.Render(st.Duration.Round(time.Millisecond).String())
		}
		if st.Error != "" {
			line += "  " + failStyle.Render(st.Error)
		}
		b.WriteString(line + "\n")
	}
}

func kv(b *strings.Builder, k, v string) {
	fmt.Fprintf(b, "  %s %s\n", dimStyle.Render(padRight(k, 12)), v)
}

func impactList(f domain.ImpactFlags) []string {
	var out []string
	for _, x := range []struct {
		on   bool
		name string
	}{
		{f.Security, "security"}, {f.APISurface, "api"}, {f.BreakingAPI, "breaking api"},
		{f.MajorBump, "major bump"}, {f.Dependencies, "dependencies"}, {f.Config, "config"},
		{f.Tests, "tests"}, {f.Docs, "docs"},
	} {
		if x.on {
			out = append(out, x.name)
		}
	}
	return out
}

func statusText(s domain.DecisionStatus) string {
	switch s {
	case domain.StatusPending:
		return warnStyle.Render(string(s))
	case domain.StatusOverdue, domain.StatusDecidedReject:
		return failStyle.Bold(true).Render(string(s))
	case domain.StatusDecidedAccept:
		return passStyle.Bold(true).Render(string(s))
	default:
		return dimStyle.Render(string(s))
	}
}

func riskText(score float64, tier domain.RiskTier) string {
	return lipgloss.NewStyle().Bold(true).Foreground(tierColor(tier)).
		Render(fmt.Sprintf("risk %.1f %s", score, tier.Label()))
}

func deadlineText(deadline, now time.Time) string {
	d := deadline.Sub(now)
	if d < 0 {
		return fmt.Sprintf("%s overdue", humanDuration(-d))
	}
	return fmt.Sprintf("due in %s", humanDuration(d))
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}

func tierDot(t domain.RiskTier) string {
	return lipgloss.NewStyle().Foreground(tierColor(t)).Render("●")
}

func tierColor(t domain.RiskTier) lipgloss.Color {
	if c, ok := tierColors[t]; ok {
		return c
	}
	return fg
}

func pipelineDot(s domain.PipelineStatus) string {
	switch s {
	case domain.PipelineCompleted:
		return passStyle.Render("●")
	case domain.PipelineFailed:
		return failStyle.Render("●")
	default:
		return warnStyle.Render("●")
	}
}

func stageDot(s domain.StageStatus) string {
	switch s {
	case domain.StageCompleted:
		return passStyle.Render("✓")
	case domain.StageFailed:
		return failStyle.Render("✗")
	case domain.StageSkipped:
		return skipStyle.Render("○")
	default:
		return warnStyle.Render("…")
	}
}

func scoreBar(score, width int) string {
	filled := max(0, min(score*width/10, width))
	empty := width - filled
	filledStr := lipgloss.NewStyle().Foreground(scoreColor(score)).Render(strings.Repeat("█", filled))
	emptyStr := lipgloss.NewStyle().Foreground(faint).Render(strings.Repeat("░", empty))
	return filledStr + emptyStr
}

// scoreColor colors a 1-10 dimension score; higher is safer.
func scoreColor(score int) lipgloss.Color {
	switch {
	case score >= 8:
		return success
	case score >= 6:
		return lime
	case score >= 4:
		return warning
	default:
		return danger
	}
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
