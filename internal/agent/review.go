package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conclavehq/conclave/internal/logger"
)

// Review is the artifact the code-review agent writes before finishing
type Review struct {
	Verdict  string          `json:"verdict"`
	Summary  string          `json:"summary"`
	Comments []ReviewComment `json:"comments"`
}

// ReviewComment is one finding in a review
type ReviewComment struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Issue    string `json:"issue"`
}

// Review verdicts
var validVerdicts = map[string]bool{
	"APPROVE":         true,
	"REQUEST_CHANGES": true,
	"COMMENT":         true,
}

// Comment severities, highest first
var severityOrder = []string{"CRITICAL", "MAJOR", "MINOR", "NIT"}

var validSeverities = map[string]bool{
	"CRITICAL": true,
	"MAJOR":    true,
	"MINOR":    true,
	"NIT":      true,
}

// genericSummaries are placeholder phrases models fall back to when they
// skip writing a real summary. Matched case-insensitively as substrings.
var genericSummaries = []string{
	"review complete",
	"review completed",
	"code review complete",
	"code review done",
	"review finished",
	"see comments",
	"comments below",
	"done reviewing",
}

const (
	reviewDirName     = "review"
	reviewLatestName  = "latest.json"
	reviewHistoryName = "history"
)

// NewCodeReview creates the review agent. On finish it validates the
// review artifact, repairs placeholder summaries deterministically, and
// archives the result.
func NewCodeReview(base Config) (*Agent, error) {
	base.SystemPrompt = staticPrompt(codeReviewPrompt)
	base.FormatFinish = func(reason, result string) string {
		if result != "" {
			return reason + "\n" + result
		}
		return reason
	}
	base.OnFinish = finalizeReview
	return New(base)
}

// finalizeReview runs the review post-processing around the finish
// transition. Every failure is logged and swallowed: a broken artifact
// must not block termination.
func finalizeReview(ctx context.Context, a *Agent, reason, result string) {
	dir := filepath.Join(stateDir(a.ProjectDir()), reviewDirName)
	latest := filepath.Join(dir, reviewLatestName)

	review, err := loadReview(latest)
	if err != nil {
		logger.Warn("Session %s: no usable review artifact: %v", a.SessionID(), err)
		return
	}

	if errs := validateReview(review); len(errs) > 0 {
		for _, e := range errs {
			logger.Warn("Session %s: review artifact: %v", a.SessionID(), e)
		}
	}

	if IsGenericSummary(review.Summary) {
		review.Summary = SynthesizeSummary(review)
		if data, err := json.MarshalIndent(review, "", "  "); err == nil {
			if err := os.WriteFile(latest, data, 0o644); err != nil {
				logger.Warn("Session %s: could not rewrite review summary: %v", a.SessionID(), err)
			}
		}
	}

	if err := archiveReview(dir, review); err != nil {
		logger.Warn("Session %s: could not archive review: %v", a.SessionID(), err)
	}
}

func loadReview(path string) (*Review, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var review Review
	if err := json.Unmarshal(data, &review); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &review, nil
}

// validateReview checks required fields. Violations are reported, not
// fatal; the artifact is still archived as-is.
func validateReview(r *Review) []error {
	var errs []error
	if !validVerdicts[r.Verdict] {
		errs = append(errs, fmt.Errorf("invalid verdict %q", r.Verdict))
	}
	for i, c := range r.Comments {
		if c.File == "" {
			errs = append(errs, fmt.Errorf("comment %d: missing file", i))
		}
		if !validSeverities[c.Severity] {
			errs = append(errs, fmt.Errorf("comment %d: invalid severity %q", i, c.Severity))
		}
		if c.Issue == "" {
			errs = append(errs, fmt.Errorf("comment %d: missing issue", i))
		}
	}
	return errs
}

// IsGenericSummary reports whether a summary is a known placeholder
// phrase rather than a real finding description
func IsGenericSummary(summary string) bool {
	s := strings.ToLower(strings.TrimSpace(summary))
	if s == "" {
		return true
	}
	for _, generic := range genericSummaries {
		if strings.Contains(s, generic) {
			return true
		}
	}
	return false
}

// SynthesizeSummary builds a deterministic summary from the verdict and
// per-severity comment counts. This is a repair step, not an LLM retry.
func SynthesizeSummary(r *Review) string {
	counts := make(map[string]int)
	for _, c := range r.Comments {
		counts[c.Severity]++
	}

	var parts []string
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(sev)))
		}
	}

	verdict := r.Verdict
	if verdict == "" {
		verdict = "COMMENT"
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%s: no issues found", verdict)
	}
	return fmt.Sprintf("%s: %d comments (%s)", verdict, len(r.Comments), strings.Join(parts, ", "))
}

// archiveReview stores the finished review (JSON plus derived Markdown)
// under a timestamped history directory, independent of the live latest
// copy. Safe to re-run; the directory may already exist.
func archiveReview(reviewDir string, r *Review) error {
	stamp := time.Now().Format("20060102-150405")
	dir := filepath.Join(reviewDir, reviewHistoryName, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "review.json"), data, 0o644); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "review.md"), []byte(reviewMarkdown(r)), 0o644)
}

// reviewMarkdown renders the human-readable form of a review
func reviewMarkdown(r *Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Code Review: %s\n\n%s\n", r.Verdict, r.Summary)

	if len(r.Comments) == 0 {
		return b.String()
	}

	b.WriteString("\n## Comments\n")
	for _, sev := range severityOrder {
		for _, c := range r.Comments {
			if c.Severity != sev {
				continue
			}
			fmt.Fprintf(&b, "\n### %s %s:%d\n", c.Severity, c.File, c.Line)
			if c.Category != "" {
				fmt.Fprintf(&b, "Category: %s\n\n", c.Category)
			}
			fmt.Fprintf(&b, "%s\n", c.Issue)
		}
	}
	return b.String()
}
