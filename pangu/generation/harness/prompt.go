package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// Marker vocabulary shared by the template and the parser.
const (
	MarkerThought     = "Thought:"
	MarkerAction      = "Action:"
	MarkerActionInput = "Action Input:"
	MarkerObservation = "Observation:"
	MarkerFinalAnswer = "Final Answer:"
)

// Template placeholders.
const (
	PlaceholderTools      = "{tools}"
	PlaceholderToolNames  = "{tool_names}"
	PlaceholderInput      = "{input}"
	PlaceholderScratchpad = "{agent_scratchpad}"
)

// DefaultTemplate asks for a single strict JSON object as Action Input.
const DefaultTemplate = `Answer the following questions as best you can. You have access to the following tools:

{tools}

Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{tool_names}]
Action Input: The input for the action. IMPORTANT: This MUST be a single, valid JSON object. All keys and all string values in the JSON MUST be enclosed in double quotes. Do not add any text before or after the JSON object.
Example: {"time_interval": "6h", "step": 1}
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original question

Begin!

Question: {input}
Thought:{agent_scratchpad}`

// PromptBuilder renders the react template for one THINKING step.
type PromptBuilder struct {
	template string
}

// NewPromptBuilder validates that template carries every placeholder.
func NewPromptBuilder(template string) (*PromptBuilder, error) {
	if template == "" {
		template = DefaultTemplate
	}
	for _, p := range []string{PlaceholderTools, PlaceholderToolNames, PlaceholderInput, PlaceholderScratchpad} {
		if !strings.Contains(template, p) {
			return nil, fmt.Errorf("prompt template is missing %s", p)
		}
	}
	return &PromptBuilder{template: template}, nil
}

// Build fills the template. Substituted values are never rescanned, so a
// question containing a placeholder is rendered literally.
func (b *PromptBuilder) Build(tools []ports.ToolSpec, question, scratchpad string, meta map[string]string) ports.PromptInput {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}

	r := strings.NewReplacer(
		PlaceholderTools, RenderTools(tools),
		PlaceholderToolNames, strings.Join(names, ", "),
		PlaceholderInput, strings.TrimSpace(strings.ReplaceAll(question, "\r\n", "\n")),
		PlaceholderScratchpad, scratchpad,
	)
	return ports.PromptInput{Prompt: r.Replace(b.template), Meta: meta}
}

// RenderTools lists tools one per line as name(args) - description.
func RenderTools(tools []ports.ToolSpec) string {
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		args := make([]string, 0, len(t.Parameters))
		for _, p := range t.Parameters {
			arg := fmt.Sprintf("%s: %s", p.Name, p.Type)
			if len(p.Enum) > 0 {
				arg += " (one of " + strings.Join(p.Enum, ", ") + ")"
			}
			if p.Minimum != nil {
				arg += fmt.Sprintf(" (>= %d)", *p.Minimum)
			}
			args = append(args, arg)
		}
		lines = append(lines, fmt.Sprintf("%s(%s) - %s", t.Name, strings.Join(args, ", "), strings.TrimSpace(t.Description)))
	}
	return strings.Join(lines, "\n")
}
