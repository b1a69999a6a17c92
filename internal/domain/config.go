package domain

import (
	"fmt"
	"time"
)

// ConfigFileName is the project-level configuration file.
const ConfigFileName = ".tollgate.yaml"

// Store drivers.
const (
	StoreBadger = "badger"
	StoreMemory = "memory"
)

// Sink types.
const (
	SinkWebhook     = "webhook"
	SinkGitHubIssue = "github_issue"
	SinkLog         = "log"
	SinkJournal     = "journal"
)

// Config holds the configuration loaded from .tollgate.yaml.
type Config struct {
	Store         StoreConfig              `yaml:"store"         json:"store"`
	GitHub        GitHubConfig             `yaml:"github"        json:"github"`
	Scan          ScanConfig               `yaml:"scan"          json:"scan"`
	Policy        PolicyConfig             `yaml:"policy"        json:"policy"`
	Decision      DecisionConfig           `yaml:"decision"      json:"decision"`
	Pipeline      PipelineConfig           `yaml:"pipeline"      json:"pipeline"`
	Notifications NotificationsConfig      `yaml:"notifications" json:"notifications"`
	Metrics       MetricsConfig            `yaml:"metrics"       json:"metrics"`
	Cache         CacheConfig              `yaml:"cache"         json:"cache"`
	Profiles      map[string]ProfileConfig `yaml:"profiles"      json:"profiles,omitempty"`
	Components    []ComponentConfig        `yaml:"components"    json:"components,omitempty"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path"   json:"path"`
}

type GitHubConfig struct {
	BaseURL           string  `yaml:"base_url"            json:"base_url,omitempty"`
	TokenEnv          string  `yaml:"token_env"           json:"token_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst"               json:"burst"`
}

// ScanConfig controls the change detector.
type ScanConfig struct {
	Workers        int           `yaml:"workers"         json:"workers"`
	Timeout        time.Duration `yaml:"timeout"         json:"timeout"`
	MaxRetries     int           `yaml:"max_retries"     json:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"     json:"max_backoff"`
	Schedule       string        `yaml:"schedule"        json:"schedule"`
	SweepSchedule  string        `yaml:"sweep_schedule"  json:"sweep_schedule"`
}

// PolicyConfig holds the decision engine thresholds on the 0-10 risk score.
type PolicyConfig struct {
	AutoApprove    bool    `yaml:"auto_approve"     json:"auto_approve"`
	RejectAt       float64 `yaml:"reject_at"        json:"reject_at"`
	ManualReviewAt float64 `yaml:"manual_review_at" json:"manual_review_at"`
	ConditionalAt  float64 `yaml:"conditional_at"   json:"conditional_at"`
}

type DecisionConfig struct {
	GraceBusinessDays int `yaml:"grace_business_days" json:"grace_business_days"`
	DeferDays         int `yaml:"defer_days"          json:"defer_days"`
}

// PipelineConfig maps stage names to shell commands. Stages without a
// command are recorded as skipped.
type PipelineConfig struct {
	DryRun       bool              `yaml:"dry_run"       json:"dry_run"`
	WorkDir      string            `yaml:"work_dir"      json:"work_dir,omitempty"`
	Shell        string            `yaml:"shell"         json:"shell"`
	StageTimeout time.Duration     `yaml:"stage_timeout" json:"stage_timeout"`
	Commands     map[string]string `yaml:"commands"      json:"commands,omitempty"`
}

type NotificationsConfig struct {
	Sinks []SinkConfig `yaml:"sinks" json:"sinks,omitempty"`
}

// SinkConfig describes one notification channel. Events filters by event
// type; empty means every event.
type SinkConfig struct {
	Name    string        `yaml:"name"    json:"name"    validate:"required"`
	Type    string        `yaml:"type"    json:"type"    validate:"required,oneof=webhook github_issue log journal"`
	URL     string        `yaml:"url"     json:"url"     validate:"required_if=Type webhook,omitempty,url"`
	Repo    string        `yaml:"repo"    json:"repo"    validate:"required_if=Type github_issue"`
	Path    string        `yaml:"path"    json:"path"    validate:"required_if=Type journal"`
	Labels  []string      `yaml:"labels"  json:"labels,omitempty"`
	Events  []EventType   `yaml:"events"  json:"events,omitempty"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Accepts reports whether the sink subscribes to the event type.
func (s SinkConfig) Accepts(t EventType) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == t {
			return true
		}
	}
	return false
}

type MetricsConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// CacheConfig locates the on-disk diff cache. An empty Dir disables it.
type CacheConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// ProfileConfig is a custom evaluation profile. Unset fields inherit from
// the built-in profile of the same name, or from the stock defaults.
type ProfileConfig struct {
	Weights    map[string]float64 `yaml:"weights"    json:"weights"`
	Confidence float64            `yaml:"confidence" json:"confidence,omitempty"`
	Thresholds *TierThresholds    `yaml:"thresholds" json:"thresholds,omitempty"`
}

func (pc ProfileConfig) toProfile(name string, base EvaluationProfile) EvaluationProfile {
	p := EvaluationProfile{
		Name:       name,
		Weights:    make(map[Dimension]float64, len(pc.Weights)),
		Confidence: DefaultConfidence,
		Thresholds: DefaultTierThresholds(),
	}
	if base.Name != "" {
		p.Confidence = base.Confidence
		p.Thresholds = base.Thresholds
	}
	for k, w := range pc.Weights {
		p.Weights[Dimension(k)] = w
	}
	if pc.Confidence > 0 {
		p.Confidence = pc.Confidence
	}
	if pc.Thresholds != nil {
		p.Thresholds = *pc.Thresholds
	}
	return p
}

// ComponentConfig is a registry seed entry.
type ComponentConfig struct {
	ID       string   `yaml:"id"       json:"id"`
	Upstream string   `yaml:"upstream" json:"upstream"`
	Version  string   `yaml:"version"  json:"version"`
	Monitor  []string `yaml:"monitor"  json:"monitor,omitempty"`
	Profile  string   `yaml:"profile"  json:"profile,omitempty"`
}

// Component converts the seed entry. An empty monitor list watches releases.
func (cc ComponentConfig) Component() Component {
	c := Component{
		ID:       cc.ID,
		Upstream: cc.Upstream,
		Version:  cc.Version,
		Profile:  cc.Profile,
		Status:   ComponentActive,
	}
	for _, m := range cc.Monitor {
		c.Monitor = append(c.Monitor, MonitorFlag(m))
	}
	if len(c.Monitor) == 0 {
		c.Monitor = []MonitorFlag{MonitorReleases}
	}
	if c.Profile == "" {
		c.Profile = ProfileDefault
	}
	return c
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Store:  StoreConfig{Driver: StoreBadger, Path: ".tollgate/data"},
		GitHub: GitHubConfig{TokenEnv: "GITHUB_TOKEN", RequestsPerSecond: 5, Burst: 5},
		Scan: ScanConfig{
			Workers:        4,
			Timeout:        30 * time.Second,
			MaxRetries:     4,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			Schedule:       "@every 1h",
			SweepSchedule:  "@every 15m",
		},
		Policy:   PolicyConfig{RejectAt: 8, ManualReviewAt: 6, ConditionalAt: 4},
		Decision: DecisionConfig{GraceBusinessDays: 5, DeferDays: 14},
		Pipeline: PipelineConfig{Shell: "/bin/sh", StageTimeout: 10 * time.Minute},
		Metrics:  MetricsConfig{Listen: ":9464"},
		Cache:    CacheConfig{Dir: ".tollgate/cache"},
	}
}

// Validate checks the config for invalid values and returns a descriptive error.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the badger driver")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store.driver %q (valid: badger, memory)", c.Store.Driver)
	}

	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be > 0 (got %d)", c.Scan.Workers)
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}
	if c.Scan.MaxRetries < 1 {
		return fmt.Errorf("scan.max_retries must be >= 1 (got %d)", c.Scan.MaxRetries)
	}
	if c.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("github.requests_per_second must be > 0")
	}

	p := c.Policy
	for name, v := range map[string]float64{"reject_at": p.RejectAt, "manual_review_at": p.ManualReviewAt, "conditional_at": p.ConditionalAt} {
		if v < 0 || v > 10 {
			return fmt.Errorf("policy.%s must be between 0 and 10 (got %.1f)", name, v)
		}
	}
	if !(p.ConditionalAt <= p.ManualReviewAt && p.ManualReviewAt <= p.RejectAt) {
		return fmt.Errorf("policy thresholds must satisfy conditional_at <= manual_review_at <= reject_at")
	}

	if c.Decision.GraceBusinessDays < 1 {
		return fmt.Errorf("decision.grace_business_days must be >= 1 (got %d)", c.Decision.GraceBusinessDays)
	}
	if c.Decision.DeferDays < 1 {
		return fmt.Errorf("decision.defer_days must be >= 1 (got %d)", c.Decision.DeferDays)
	}

	for stage := range c.Pipeline.Commands {
		if !isPipelineStage(stage) {
			return fmt.Errorf("unknown stage %q in pipeline.commands", stage)
		}
	}

	if _, err := NewProfileSet(c.Profiles); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Components))
	for i, cc := range c.Components {
		if cc.ID == "" || cc.Upstream == "" {
			return fmt.Errorf("components[%d]: id and upstream are required", i)
		}
		if seen[cc.ID] {
			return fmt.Errorf("components[%d]: duplicate id %q", i, cc.ID)
		}
		seen[cc.ID] = true
		for _, m := range cc.Monitor {
			if f := MonitorFlag(m); f != MonitorReleases && f != MonitorAdvisories {
				return fmt.Errorf("components[%d]: unknown monitor flag %q", i, m)
			}
		}
	}
	return nil
}

func isPipelineStage(name string) bool {
	for _, s := range StagesFor(RecommendConditionalApprove) {
		if s == name {
			return true
		}
	}
	return false
}
