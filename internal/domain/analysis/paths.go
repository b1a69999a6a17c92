package analysis

import (
	"path"
	"strings"

	"github.com/fatih/camelcase"

	"github.com/tollgate/tollgate/internal/domain"
)

// dependencyManifests are lockfiles and manifests across ecosystems.
var dependencyManifests = map[string]bool{
	"go.mod": true, "go.sum": true, "package.json": true, "package-lock.json": true,
	"yarn.lock": true, "pnpm-lock.yaml": true, "requirements.txt": true,
	"pipfile": true, "pipfile.lock": true, "poetry.lock": true, "pyproject.toml": true,
	"cargo.toml": true, "cargo.lock": true, "gemfile": true, "gemfile.lock": true,
	"pom.xml": true, "build.gradle": true, "build.gradle.kts": true,
	"composer.json": true, "composer.lock": true,
}

var docExts = map[string]bool{".md": true, ".rst": true, ".adoc": true, ".txt": true}

var configExts = map[string]bool{
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".env": true, ".properties": true,
}

var sourceExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".mjs": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".kt": true, ".scala": true, ".rb": true, ".rs": true, ".c": true, ".h": true,
	".cc": true, ".cpp": true, ".hpp": true, ".cs": true, ".swift": true, ".php": true,
	".sh": true, ".proto": true, ".sql": true,
}

// bucketOf assigns a path to exactly one bucket. Precedence:
// dependencies, tests, docs, config, source, other.
func bucketOf(p string) string {
	lower := strings.ToLower(p)
	base := path.Base(lower)
	ext := path.Ext(base)

	switch {
	case dependencyManifests[base] || hasDir(lower, "vendor") || hasDir(lower, "node_modules"):
		return "dependencies"
	case isTestPath(lower, base):
		return "tests"
	case docExts[ext] || hasDir(lower, "docs") || hasDir(lower, "doc") ||
		strings.HasPrefix(base, "license") || strings.HasPrefix(base, "changelog"):
		return "docs"
	case configExts[ext] || base == "dockerfile" || base == "makefile" || hasDir(lower, ".github"):
		return "config"
	case sourceExts[ext]:
		return "source"
	default:
		return "other"
	}
}

func isTestPath(lower, base string) bool {
	if hasDir(lower, "test") || hasDir(lower, "tests") || hasDir(lower, "__tests__") || hasDir(lower, "testdata") {
		return true
	}
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_")
}

func hasDir(p, dir string) bool {
	return strings.HasPrefix(p, dir+"/") || strings.Contains(p, "/"+dir+"/")
}

// riskWords map security-sensitive path tokens to a severity.
var riskWords = map[string]string{
	"crypto": domain.SeverityHigh, "tls": domain.SeverityHigh, "ssl": domain.SeverityHigh,
	"cert": domain.SeverityHigh, "certs": domain.SeverityHigh, "certificate": domain.SeverityHigh,
	"cipher": domain.SeverityHigh, "auth": domain.SeverityHigh, "authn": domain.SeverityHigh,
	"authz": domain.SeverityHigh, "oauth": domain.SeverityHigh, "security": domain.SeverityHigh,
	"permission": domain.SeverityHigh, "permissions": domain.SeverityHigh, "acl": domain.SeverityHigh,
	"rbac": domain.SeverityHigh, "password": domain.SeverityHigh, "secret": domain.SeverityHigh,
	"secrets": domain.SeverityHigh, "jwt": domain.SeverityHigh, "saml": domain.SeverityHigh,

	"session": domain.SeverityMedium, "token": domain.SeverityMedium, "csrf": domain.SeverityMedium,
	"sanitize": domain.SeverityMedium, "escape": domain.SeverityMedium, "cors": domain.SeverityMedium,
	"cookie": domain.SeverityMedium, "login": domain.SeverityMedium, "signature": domain.SeverityMedium,
	"verify": domain.SeverityMedium, "hash": domain.SeverityMedium, "random": domain.SeverityMedium,
}

// pathTokens splits a path on separators and CamelCase boundaries.
func pathTokens(p string) []string {
	fields := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '.' || r == '_' || r == '-'
	})
	var tokens []string
	for _, f := range fields {
		for _, w := range camelcase.Split(f) {
			tokens = append(tokens, strings.ToLower(w))
		}
	}
	return tokens
}

// riskFileFor reports the strongest risk word in the path, if any.
func riskFileFor(p string) (domain.RiskFile, bool) {
	var best domain.RiskFile
	for _, tok := range pathTokens(p) {
		sev, ok := riskWords[tok]
		if !ok {
			continue
		}
		if best.Severity == "" || (sev == domain.SeverityHigh && best.Severity != domain.SeverityHigh) {
			best = domain.RiskFile{Path: p, Pattern: tok, Severity: sev}
		}
	}
	return best, best.Severity != ""
}

// isAPIPath flags files that make up a public interface.
func isAPIPath(p string) bool {
	lower := strings.ToLower(p)
	base := path.Base(lower)
	switch {
	case hasDir(lower, "api"), hasDir(lower, "include"):
		return true
	case strings.HasSuffix(base, ".proto"), strings.HasSuffix(base, ".d.ts"):
		return true
	case strings.HasPrefix(base, "openapi"), strings.HasPrefix(base, "swagger"):
		return true
	}
	return false
}
