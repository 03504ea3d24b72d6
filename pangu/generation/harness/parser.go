package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// ParsedOutput is what one model completion asks the loop to do next:
// either an action to run or a final answer.
type ParsedOutput struct {
	Thought     string
	Action      *ports.ActionRequest
	FinalAnswer string
	Repaired    bool // action input needed the repair pass
}

// Done reports whether the output ends the turn.
func (p ParsedOutput) Done() bool { return p.Action == nil }

// ActionParser extracts actions and final answers from react-formatted
// model output.
type ActionParser struct {
	actionLine    *regexp.Regexp
	trailingComma *regexp.Regexp
	bareKey       *regexp.Regexp
	codeFence     *regexp.Regexp
}

func NewActionParser() *ActionParser {
	return &ActionParser{
		actionLine:    regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(MarkerAction)),
		trailingComma: regexp.MustCompile(`,\s*([}\]])`),
		bareKey:       regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`),
		codeFence:     regexp.MustCompile("^```[a-zA-Z]*\\s*|\\s*```$"),
	}
}

// Parse reads one completion. An Action takes precedence over a Final
// Answer appearing in the same text.
func (p *ActionParser) Parse(text string) (ParsedOutput, error) {
	text = TruncateObservation(text)

	if idx := p.actionIndex(text); idx >= 0 {
		action, repaired, err := p.parseAction(text[idx:])
		if err != nil {
			return ParsedOutput{}, err
		}
		return ParsedOutput{
			Thought:  extractThought(text[:idx]),
			Action:   action,
			Repaired: repaired,
		}, nil
	}

	if idx := strings.Index(text, MarkerFinalAnswer); idx >= 0 {
		answer := strings.TrimSpace(text[idx+len(MarkerFinalAnswer):])
		if answer == "" {
			return ParsedOutput{}, &ActionParseError{Reason: "final answer is empty", Text: text}
		}
		return ParsedOutput{
			Thought:     extractThought(text[:idx]),
			FinalAnswer: answer,
		}, nil
	}

	return ParsedOutput{}, &ActionParseError{
		Reason: fmt.Sprintf("expected %q or %q", MarkerAction, MarkerFinalAnswer),
		Text:   text,
	}
}

// actionIndex locates the Action marker. A marker opening a line always
// counts; one in the middle of a line only counts before any Final
// Answer, so answer prose mentioning "Action:" stays an answer.
func (p *ActionParser) actionIndex(text string) int {
	if loc := p.actionLine.FindStringIndex(text); loc != nil {
		return loc[1] - len(MarkerAction)
	}
	idx := strings.Index(text, MarkerAction)
	if idx < 0 {
		return -1
	}
	if final := strings.Index(text, MarkerFinalAnswer); final >= 0 && final < idx {
		return -1
	}
	return idx
}

// parseAction reads the tool name and its JSON input from text starting
// at the Action marker.
func (p *ActionParser) parseAction(text string) (*ports.ActionRequest, bool, error) {
	rest := text[len(MarkerAction):]
	name := rest
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		name = rest[:nl]
	}
	name = strings.Trim(strings.TrimSpace(name), "`\"'")
	if name == "" {
		return nil, false, &ActionParseError{Reason: "action names no tool", Text: text}
	}

	inputIdx := strings.Index(rest, MarkerActionInput)
	if inputIdx < 0 {
		return nil, false, &ActionParseError{Reason: fmt.Sprintf("missing %q for tool %s", MarkerActionInput, name), Text: text}
	}
	payload := rest[inputIdx+len(MarkerActionInput):]
	payload = cutAtMarker(payload, MarkerObservation, MarkerThought)
	payload = strings.TrimSpace(p.codeFence.ReplaceAllString(strings.TrimSpace(payload), ""))

	input, repaired, err := p.decodeObject(payload)
	if err != nil {
		return nil, false, &ActionParseError{Reason: err.Error(), Text: text}
	}
	return &ports.ActionRequest{Tool: name, Input: input}, repaired, nil
}

// decodeObject accepts strict JSON, else applies exactly one repair pass:
// prose around the first object is dropped and, if that object still
// does not decode, the common syntax slips are fixed.
func (p *ActionParser) decodeObject(payload string) (json.RawMessage, bool, error) {
	if payload == "" {
		return nil, false, fmt.Errorf("action input is empty")
	}
	if raw, ok := compactObject(payload); ok {
		return raw, false, nil
	}

	start := strings.IndexByte(payload, '{')
	if start < 0 {
		return nil, false, fmt.Errorf("action input is not a JSON object: %s", payload)
	}
	if raw, ok := firstObject(payload[start:]); ok {
		return raw, true, nil
	}
	if raw, ok := firstObject(p.fixJSON(payload[start:])); ok {
		return raw, true, nil
	}
	return nil, false, fmt.Errorf("action input is not valid JSON after repair: %s", payload)
}

// fixJSON normalizes the mistakes small models make most often.
func (p *ActionParser) fixJSON(s string) string {
	s = swapDelimitingQuotes(s)
	s = p.trailingComma.ReplaceAllString(s, "$1")
	s = p.bareKey.ReplaceAllString(s, `$1"$2":`)
	return s
}

// swapDelimitingQuotes turns single quotes that open or close a key or
// value into double quotes. Apostrophes inside words are kept.
func swapDelimitingQuotes(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c != '\'' {
			continue
		}
		prev, next := neighbour(b, i, -1), neighbour(b, i, 1)
		opens := prev == 0 || strings.IndexByte("{[,:", prev) >= 0
		closes := next == 0 || strings.IndexByte(":,}]", next) >= 0
		if opens || closes {
			b[i] = '"'
		}
	}
	return string(b)
}

// neighbour returns the closest non-space byte from i in direction dir,
// or 0 at either end.
func neighbour(b []byte, i, dir int) byte {
	for j := i + dir; j >= 0 && j < len(b); j += dir {
		switch b[j] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b[j]
	}
	return 0
}

// firstObject decodes the JSON object at the start of s and ignores
// whatever follows it.
func firstObject(s string) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&raw); err != nil {
		return nil, false
	}
	return compactObject(string(raw))
}

// compactObject returns s compacted if it decodes as a JSON object.
func compactObject(s string) (json.RawMessage, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}

// FormatAction renders an action the way the model is asked to write it.
func FormatAction(a ports.ActionRequest) string {
	return fmt.Sprintf("%s %s\n%s %s", MarkerAction, a.Tool, MarkerActionInput, string(a.Input))
}

// TruncateObservation drops anything the model wrote from its own
// Observation line onward; observations only come from tools.
func TruncateObservation(text string) string {
	if loc := observationLine.FindStringIndex(text); loc != nil {
		return strings.TrimRight(text[:loc[0]], " \t\n")
	}
	return text
}

var observationLine = regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(MarkerObservation))

func extractThought(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if idx := strings.LastIndex(prefix, MarkerThought); idx >= 0 {
		prefix = prefix[idx+len(MarkerThought):]
	}
	return strings.TrimSpace(prefix)
}

func cutAtMarker(s string, markers ...string) string {
	end := len(s)
	for _, m := range markers {
		if idx := strings.Index(s, m); idx >= 0 && idx < end {
			end = idx
		}
	}
	return s[:end]
}
