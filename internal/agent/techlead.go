package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// TechLeadMode is the prompt mode selected from the project tree state
type TechLeadMode string

const (
	// ModeAnalysis: documentation exists, no source yet
	ModeAnalysis TechLeadMode = "analysis"
	// ModeHybrid: source exists, documentation does not
	ModeHybrid TechLeadMode = "hybrid"
	// ModeIntegration: both documentation and source exist
	ModeIntegration TechLeadMode = "integration"
	// ModeDiscovery: neither exists
	ModeDiscovery TechLeadMode = "discovery"
)

// docFiles are the documentation markers checked for mode selection
var docFiles = []string{
	"docs/PRD.md",
	"docs/ARCHITECTURE.md",
	"docs/PLAN.md",
	"PRD.md",
	"ARCHITECTURE.md",
}

// sourceExtensions mark files counted as project source
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".ts": true, ".tsx": true,
	".js": true, ".rs": true, ".java": true, ".rb": true,
	".c": true, ".cc": true, ".cpp": true, ".h": true,
}

// NewTechLead creates the tech-lead agent. Its prompt mode is recomputed
// from the project tree on every step, not cached, so it follows files
// the user creates mid-conversation.
func NewTechLead(base Config) (*Agent, error) {
	base.SystemPrompt = func(a *Agent) string {
		mode := DetectTechLeadMode(a.ProjectDir())
		var b strings.Builder
		b.WriteString(techLeadBasePrompt)
		switch mode {
		case ModeAnalysis:
			b.WriteString(techLeadAnalysisSection)
		case ModeHybrid:
			b.WriteString(techLeadHybridSection)
		case ModeIntegration:
			b.WriteString(techLeadIntegrationSection)
		default:
			b.WriteString(techLeadDiscoverySection)
		}
		return b.String()
	}
	return New(base)
}

// DetectTechLeadMode inspects the project directory for documentation
// and source files and selects one of the four mutually exclusive modes
func DetectTechLeadMode(projectDir string) TechLeadMode {
	hasDocs := hasDocumentation(projectDir)
	hasSource := hasSourceFiles(projectDir)

	switch {
	case hasDocs && !hasSource:
		return ModeAnalysis
	case !hasDocs && hasSource:
		return ModeHybrid
	case hasDocs && hasSource:
		return ModeIntegration
	default:
		return ModeDiscovery
	}
}

func hasDocumentation(projectDir string) bool {
	for _, rel := range docFiles {
		if info, err := os.Stat(filepath.Join(projectDir, rel)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// hasSourceFiles walks two levels deep looking for a source file. Hidden
// directories and the state dir are skipped.
func hasSourceFiles(projectDir string) bool {
	return scanForSource(projectDir, 2)
}

func scanForSource(dir string, depth int) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if depth > 0 && scanForSource(filepath.Join(dir, name), depth-1) {
				return true
			}
			continue
		}
		if sourceExtensions[filepath.Ext(name)] {
			return true
		}
	}
	return false
}
