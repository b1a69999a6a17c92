// Package diffparse turns unified diffs and git format-patch output into
// the payload the analyzer consumes.
package diffparse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/tollgate/tollgate/internal/domain"
)

const devNull = "/dev/null"

var (
	fromLine = regexp.MustCompile(`^From ([0-9a-f]{40}) `)
	hunkLine = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+\d+(?:,(\d+))? @@`)
)

var headerPrefixes = []string{
	"diff ", "index ", "--- ", "+++ ", "new file mode", "deleted file mode",
	"old mode", "new mode", "similarity index", "dissimilarity index",
	"rename from", "rename to", "copy from", "copy to", "Binary files",
}

// Parse reads a unified diff. Commit headers from git format-patch are
// collected when present.
func Parse(r io.Reader) (domain.UpstreamDiff, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return domain.UpstreamDiff{}, fmt.Errorf("reading diff: %w", err)
	}
	return ParseBytes(raw)
}

// ParseBytes is Parse over an in-memory patch.
func ParseBytes(raw []byte) (domain.UpstreamDiff, error) {
	var out domain.UpstreamDiff
	out.Commits = commits(raw)

	fds, err := diff.NewMultiFileDiffReader(bytes.NewReader(diffLines(raw))).ReadAllFiles()
	if err != nil {
		return domain.UpstreamDiff{}, fmt.Errorf("parsing diff: %w", err)
	}
	for _, fd := range fds {
		fc, ok := fileChange(fd)
		if ok {
			out.Files = append(out.Files, fc)
		}
	}
	return out, nil
}

func fileChange(fd *diff.FileDiff) (domain.FileChange, bool) {
	orig, next := stripPrefix(fd.OrigName), stripPrefix(fd.NewName)
	fc := domain.FileChange{Path: next, Status: domain.FileModified}
	switch {
	case orig == "" && next == "":
		return fc, false
	case fd.OrigName == devNull:
		fc.Status = domain.FileAdded
	case fd.NewName == devNull:
		fc.Path, fc.Status = orig, domain.FileRemoved
	case orig != next:
		fc.Status = domain.FileRenamed
	}

	for _, h := range fd.Hunks {
		for _, line := range strings.Split(string(h.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				fc.Additions++
			case strings.HasPrefix(line, "-"):
				fc.Deletions++
			}
		}
	}
	return fc, true
}

func stripPrefix(name string) string {
	if name == devNull {
		return ""
	}
	for _, p := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, p) {
			return name[len(p):]
		}
	}
	return name
}

// commits extracts "From <sha>" and "Subject:" pairs of an mbox patch series.
func commits(raw []byte) []domain.Commit {
	var out []domain.Commit
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := fromLine.FindStringSubmatch(line); m != nil {
			out = append(out, domain.Commit{SHA: m[1]})
			continue
		}
		if subject, ok := strings.CutPrefix(line, "Subject: "); ok && len(out) > 0 && out[len(out)-1].Message == "" {
			out[len(out)-1].Message = trimPatchTag(subject)
		}
	}
	return out
}

func trimPatchTag(subject string) string {
	if strings.HasPrefix(subject, "[") {
		if i := strings.Index(subject, "]"); i >= 0 {
			return strings.TrimSpace(subject[i+1:])
		}
	}
	return subject
}

// diffLines drops everything that is not diff content, such as mail
// headers, commit messages, diffstats and signatures. Hunk bodies are
// bounded by the line counts in their headers.
func diffLines(raw []byte) []byte {
	var out bytes.Buffer
	var orig, next int
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if orig > 0 || next > 0 {
			switch {
			case line == "" || line[0] == ' ':
				orig--
				next--
			case line[0] == '-':
				orig--
			case line[0] == '+':
				next--
			case line[0] == '\\':
			default:
				orig, next = 0, 0
				continue
			}
			out.WriteString(line + "\n")
			continue
		}
		if strings.HasPrefix(line, `\`) {
			out.WriteString(line + "\n")
			continue
		}
		if m := hunkLine.FindStringSubmatch(line); m != nil {
			orig, next = hunkCount(m[1]), hunkCount(m[2])
			out.WriteString(line + "\n")
			continue
		}
		for _, p := range headerPrefixes {
			if strings.HasPrefix(line, p) {
				out.WriteString(line + "\n")
				break
			}
		}
	}
	return out.Bytes()
}

func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
