package harness

import (
	"fmt"
	"regexp"
	"sync"
	"unicode/utf8"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// Guardrails enforces the tool allowlist and output hygiene.
type Guardrails struct {
	mu            sync.RWMutex
	allowlist     map[string]bool  // empty means every registered tool
	outputFilters []*regexp.Regexp // masked in anything shown to the user
	maxOutputSize int              // bytes, 0 disables
}

// NewGuardrails creates guardrails with default output filters.
func NewGuardrails(maxOutputSize int) *Guardrails {
	return &Guardrails{
		allowlist: make(map[string]bool),
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
			regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]{16,}`),
		},
		maxOutputSize: maxOutputSize,
	}
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowlist[name] = true
}

// ValidateAction rejects actions naming a tool outside the allowlist.
func (g *Guardrails) ValidateAction(action ports.ActionRequest) error {
	if action.Tool == "" {
		return &UnknownToolError{Name: action.Tool}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.allowlist) > 0 && !g.allowlist[action.Tool] {
		return fmt.Errorf("tool %s is not in allowlist: %w", action.Tool, ErrUnknownTool)
	}
	return nil
}

// SanitizeOutput masks sensitive values.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}

// ValidateOutputSize checks output against the configured cap.
func (g *Guardrails) ValidateOutputSize(output string) error {
	if g.maxOutputSize > 0 && len(output) > g.maxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum %d", len(output), g.maxOutputSize)
	}
	return nil
}

// ClampOutput truncates output to the size cap on a rune boundary.
func (g *Guardrails) ClampOutput(output string) string {
	if g.ValidateOutputSize(output) == nil {
		return output
	}
	cut := g.maxOutputSize
	for cut > 0 && !utf8.RuneStart(output[cut]) {
		cut--
	}
	return output[:cut]
}
