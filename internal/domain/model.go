package domain

import (
	"strings"
	"time"
)

// MonitorFlag selects which upstream signals a component is watched for.
type MonitorFlag string

const (
	MonitorReleases   MonitorFlag = "releases"
	MonitorAdvisories MonitorFlag = "security_advisories"
)

// ComponentStatus is the activity status of a tracked component.
type ComponentStatus string

const (
	ComponentActive ComponentStatus = "active"
	ComponentPaused ComponentStatus = "paused"
)

// Component is a tracked upstream dependency under governance.
type Component struct {
	ID             string          `json:"id"              yaml:"id"       validate:"required"`
	Upstream       string          `json:"upstream"        yaml:"upstream" validate:"required"`
	Version        string          `json:"version"         yaml:"version"`
	LatestSeen     string          `json:"latest_seen,omitempty"`
	Monitor        []MonitorFlag   `json:"monitor"         yaml:"monitor"  validate:"dive,oneof=releases security_advisories"`
	Profile        string          `json:"profile"         yaml:"profile"`
	Status         ComponentStatus `json:"status"`
	LastCheckedAt  time.Time       `json:"last_checked_at,omitempty"`
	SeenAdvisories []string        `json:"seen_advisories,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Monitors reports whether the component is watched for the given signal.
func (c Component) Monitors(flag MonitorFlag) bool {
	for _, f := range c.Monitor {
		if f == flag {
			return true
		}
	}
	return false
}

// HasSeenAdvisory reports whether the advisory ID was part of an earlier check.
func (c Component) HasSeenAdvisory(id string) bool {
	for _, s := range c.SeenAdvisories {
		if s == id {
			return true
		}
	}
	return false
}

// ComponentFilter narrows List results. Zero value matches everything.
type ComponentFilter struct {
	Status ComponentStatus
}

func (f ComponentFilter) Matches(c Component) bool {
	return f.Status == "" || f.Status == c.Status
}

// CheckResult is what a successful detector check writes back to the registry.
type CheckResult struct {
	CheckedAt      time.Time
	LatestSeen     string
	Version        string // adopted version; empty keeps the current one
	SeenAdvisories []string
}

// ChangeKind distinguishes release changes from advisory-only changes.
type ChangeKind string

const (
	ChangeRelease  ChangeKind = "release"
	ChangeAdvisory ChangeKind = "security_advisory"
)

// Release is the latest release descriptor returned by an upstream.
type Release struct {
	Version     string    `json:"version"`
	Notes       string    `json:"notes"`
	PublishedAt time.Time `json:"published_at"`
}

// Advisory is a single security advisory published for an upstream.
type Advisory struct {
	ID       string `json:"id"`
	CVE      string `json:"cve,omitempty"`
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
}

// VersionChange is an observed delta for one component. Immutable once created.
type VersionChange struct {
	ComponentID  string     `json:"component_id"`
	Kind         ChangeKind `json:"kind"`
	FromVersion  string     `json:"from_version"`
	ToVersion    string     `json:"to_version"`
	Notes        string     `json:"notes,omitempty"`
	Advisories   []Advisory `json:"advisories,omitempty"`
	AdvisoryKey  string     `json:"advisory_key,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// Key identifies the change for duplicate suppression within a component.
func (v VersionChange) Key() string {
	if v.Kind == ChangeAdvisory {
		return "advisories:" + v.AdvisoryKey
	}
	return v.ToVersion
}

// IsSecurity reports whether the change was raised by a security advisory.
func (v VersionChange) IsSecurity() bool {
	return v.Kind == ChangeAdvisory || len(v.Advisories) > 0
}

// Commit is one upstream commit between two versions.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}

// FileStatus describes what happened to a file in a diff.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileRemoved  FileStatus = "removed"
	FileRenamed  FileStatus = "renamed"
)

// FileChange is one file touched by an upstream diff.
type FileChange struct {
	Path      string     `json:"path"`
	Status    FileStatus `json:"status"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
}

// UpstreamDiff is the raw payload the analyzer works on.
type UpstreamDiff struct {
	Commits    []Commit     `json:"commits,omitempty"`
	Files      []FileChange `json:"files,omitempty"`
	Advisories []Advisory   `json:"advisories,omitempty"`
	Notes      string       `json:"notes,omitempty"`
}

// RiskTier is a coarse risk bucket.
type RiskTier string

const (
	TierVeryLow RiskTier = "very_low"
	TierLow     RiskTier = "low"
	TierMedium  RiskTier = "medium"
	TierHigh    RiskTier = "high"
)

var tierRank = map[RiskTier]int{TierVeryLow: 0, TierLow: 1, TierMedium: 2, TierHigh: 3}

// AtLeast returns the higher of two tiers.
func (t RiskTier) AtLeast(other RiskTier) RiskTier {
	if tierRank[other] > tierRank[t] {
		return other
	}
	return t
}

func (t RiskTier) Label() string {
	return strings.ToUpper(string(t))
}

// ChangeStats are the basic counts of a diff.
type ChangeStats struct {
	FilesChanged int `json:"files_changed"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	Commits      int `json:"commits"`
}

// FileBuckets holds every changed path in exactly one bucket.
type FileBuckets struct {
	Source       []string `json:"source,omitempty"`
	Tests        []string `json:"tests,omitempty"`
	Config       []string `json:"config,omitempty"`
	Docs         []string `json:"docs,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Other        []string `json:"other,omitempty"`
}

func (b FileBuckets) Total() int {
	return len(b.Source) + len(b.Tests) + len(b.Config) + len(b.Docs) + len(b.Dependencies) + len(b.Other)
}

// RiskFile is a changed file matching a security-sensitive pattern.
type RiskFile struct {
	Path     string `json:"path"`
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
}

// Risk file severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// ImpactFlags summarise what parts of the upstream the change touches.
type ImpactFlags struct {
	Security     bool `json:"security"`
	APISurface   bool `json:"api_surface"`
	BreakingAPI  bool `json:"breaking_api"`
	Tests        bool `json:"tests"`
	Docs         bool `json:"docs"`
	Dependencies bool `json:"dependencies"`
	Config       bool `json:"config"`
	MajorBump    bool `json:"major_bump"`
}

// Signals are keyword hits found in commit messages and release notes.
type Signals struct {
	Breaking    int `json:"breaking"`
	Deprecation int `json:"deprecation"`
	Performance int `json:"performance"`
	SecurityFix int `json:"security_fix"`
	Feature     int `json:"feature"`
	Bugfix      int `json:"bugfix"`
}

// ChangeClassification is the analyzer's coarse verdict.
type ChangeClassification struct {
	Tier   RiskTier `json:"tier"`
	Action string   `json:"action"`
	Tags   []string `json:"tags,omitempty"`
}

// ChangeAnalysis is the structured view of one VersionChange.
type ChangeAnalysis struct {
	Stats          ChangeStats          `json:"stats"`
	Buckets        FileBuckets          `json:"buckets"`
	RiskFiles      []RiskFile           `json:"risk_files,omitempty"`
	Impact         ImpactFlags          `json:"impact"`
	Signals        Signals              `json:"signals"`
	Classification ChangeClassification `json:"classification"`
}

// Dimension names a scoring axis of the risk evaluator.
type Dimension string

const (
	DimensionRisk        Dimension = "risk"
	DimensionTechnical   Dimension = "technical"
	DimensionOperational Dimension = "operational"
	DimensionStrategic   Dimension = "strategic"
	DimensionFinancial   Dimension = "financial"
)

// Dimensions lists the canonical dimensions in display order.
var Dimensions = []Dimension{
	DimensionRisk, DimensionTechnical, DimensionOperational,
	DimensionStrategic, DimensionFinancial,
}

// DimensionScore is a single bounded [1,10] score; higher is safer.
type DimensionScore struct {
	Dimension Dimension `json:"dimension"`
	Score     int       `json:"score"`
	Weight    float64   `json:"weight"`
	Reasons   []string  `json:"reasons,omitempty"`
}

// RiskAssessment is the evaluator output for one change.
type RiskAssessment struct {
	Profile       string           `json:"profile"`
	Dimensions    []DimensionScore `json:"dimensions"`
	WeightedTotal float64          `json:"weighted_total"`
	RiskScore     float64          `json:"risk_score"`
	Tier          RiskTier         `json:"tier"`
	Confidence    float64          `json:"confidence"`
}

// Score returns the score of a dimension, or 0 when absent.
func (a RiskAssessment) Score(d Dimension) int {
	for _, ds := range a.Dimensions {
		if ds.Dimension == d {
			return ds.Score
		}
	}
	return 0
}

// Recommendation is the automated verdict of the decision engine.
type Recommendation string

const (
	RecommendAutoApprove        Recommendation = "AUTO_APPROVE"
	RecommendConditionalApprove Recommendation = "CONDITIONAL_APPROVE"
	RecommendManualReview       Recommendation = "MANUAL_REVIEW"
	RecommendReject             Recommendation = "REJECT"
)

// Scenario is a candidate remediation plan.
type Scenario struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Effort   string   `json:"effort"`
	Risk     RiskTier `json:"risk"`
	Timeline string   `json:"timeline"`
	Steps    []string `json:"steps"`
}

// DecisionRecommendation is the decision engine's output.
type DecisionRecommendation struct {
	Action             Recommendation `json:"action"`
	Reason             string         `json:"reason"`
	Confidence         float64        `json:"confidence"`
	RequiresValidation bool           `json:"requires_validation"`
	Scenarios          []Scenario     `json:"scenarios"`
}

// EvaluationStatus tracks where an evaluation is in its life.
type EvaluationStatus string

const (
	EvaluationOpen        EvaluationStatus = "open"
	EvaluationImplemented EvaluationStatus = "implemented"
	EvaluationRejected    EvaluationStatus = "rejected"
	EvaluationCancelled   EvaluationStatus = "cancelled"
	EvaluationFailed      EvaluationStatus = "failed"
)

// SuppressesDetection reports whether an evaluation in this status blocks
// the same change from being raised again.
func (s EvaluationStatus) SuppressesDetection() bool {
	switch s {
	case EvaluationOpen, EvaluationRejected, EvaluationImplemented:
		return true
	default:
		return false
	}
}

// Evaluation binds a component, a change and everything derived from it.
type Evaluation struct {
	ID             string                  `json:"id"`
	ComponentID    string                  `json:"component_id"`
	Change         VersionChange           `json:"change"`
	Analysis       *ChangeAnalysis         `json:"analysis,omitempty"`
	Assessment     *RiskAssessment         `json:"assessment,omitempty"`
	Recommendation *DecisionRecommendation `json:"recommendation,omitempty"`
	Status         EvaluationStatus        `json:"status"`
	Failure        string                  `json:"failure,omitempty"`
	DecisionID     string                  `json:"decision_id,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	Implemented    bool                    `json:"implemented"`
	ImplementedAt  *time.Time              `json:"implemented_at,omitempty"`
}

// Key is the change key used for duplicate suppression.
func (e Evaluation) Key() string { return e.Change.Key() }

// EvaluationFilter narrows evaluation listings.
type EvaluationFilter struct {
	ComponentID string
	Key         string
	Status      EvaluationStatus
}

func (f EvaluationFilter) Matches(e Evaluation) bool {
	if f.ComponentID != "" && f.ComponentID != e.ComponentID {
		return false
	}
	if f.Key != "" && f.Key != e.Key() {
		return false
	}
	return f.Status == "" || f.Status == e.Status
}
