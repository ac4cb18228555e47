package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Operation is the rewrite applied to each cue.
type Operation string

const (
	OperationOptimize  Operation = "optimize"
	OperationTranslate Operation = "translate"
)

// ParseOperation accepts an operation name case-insensitively.
func ParseOperation(s string) (Operation, bool) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OperationOptimize, OperationTranslate:
		return op, true
	default:
		return op, false
	}
}

// ConnectionProbeReply is the phrase TestConnection expects back.
const ConnectionProbeReply = "CONNECTION OK"

const connectionProbePrompt = "This is a connectivity check. Reply with exactly the words " +
	ConnectionProbeReply + " and nothing else."

// Options tunes the prompt sent for each cue.
type Options struct {
	Style           string `json:"style"`
	PreserveMeaning bool   `json:"preserveMeaning"`
	FixErrors       bool   `json:"fixErrors"`
	ImproveGrammar  bool   `json:"improveGrammar"`
	TargetLanguage  string `json:"targetLanguage"`
}

// NewOptions returns the defaults: natural style with every optimize switch
// on.
func NewOptions() *Options {
	return &Options{
		Style:           "natural",
		PreserveMeaning: true,
		FixErrors:       true,
		ImproveGrammar:  true,
	}
}

// UnmarshalJSON starts from NewOptions so fields missing from the document
// keep their defaults.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	opts := plain(*NewOptions())
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	*o = Options(opts)
	return nil
}

func (o *Options) WithStyle(style string) *Options {
	o.Style = style
	return o
}

func (o *Options) WithPreserveMeaning(v bool) *Options {
	o.PreserveMeaning = v
	return o
}

func (o *Options) WithFixErrors(v bool) *Options {
	o.FixErrors = v
	return o
}

func (o *Options) WithImproveGrammar(v bool) *Options {
	o.ImproveGrammar = v
	return o
}

func (o *Options) WithTargetLanguage(lang string) *Options {
	o.TargetLanguage = lang
	return o
}

var styleHints = map[string]string{
	"natural": "natural and conversational, as people actually speak",
	"formal":  "formal and precise",
	"casual":  "casual and relaxed",
	"concise": "as short as possible while staying complete",
}

// LanguageName renders a BCP 47 code as an English language name. Input
// that is not a known code is returned unchanged.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

func buildOptimizePrompt(text string, opts *Options) string {
	var prompt strings.Builder

	prompt.WriteString("You are a professional subtitle editor. Improve the subtitle line below.\n\n")

	prompt.WriteString("=== REQUIREMENTS ===\n")
	style := strings.TrimSpace(opts.Style)
	if style == "" {
		style = "natural"
	}
	hint, ok := styleHints[strings.ToLower(style)]
	if !ok {
		hint = style
	}
	prompt.WriteString(fmt.Sprintf("- Style: %s\n", hint))
	if opts.PreserveMeaning {
		prompt.WriteString("- Preserve the original meaning exactly\n")
	}
	if opts.FixErrors {
		prompt.WriteString("- Fix spelling and speech-recognition errors\n")
	}
	if opts.ImproveGrammar {
		prompt.WriteString("- Improve grammar and punctuation\n")
	}
	prompt.WriteString("- Keep it short enough to read on screen\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Return ONLY the improved subtitle text. Do not add quotes, notes or explanations.\n")

	prompt.WriteString("\n=== SUBTITLE ===\n")
	prompt.WriteString(text)

	return prompt.String()
}

func buildTranslatePrompt(text string, opts *Options) string {
	target := LanguageName(opts.TargetLanguage)

	var prompt strings.Builder

	prompt.WriteString("You are a professional subtitle translator. Translate the subtitle line below into " + target + ".\n\n")

	prompt.WriteString("=== REQUIREMENTS ===\n")
	prompt.WriteString("- Keep the speaker's tone and intent\n")
	prompt.WriteString("- Ensure " + target + " reads naturally\n")
	prompt.WriteString("- Keep it short enough to read on screen\n")
	prompt.WriteString("- Preserve line breaks\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Return ONLY the translated text. Do not add quotes, notes or explanations.\n")

	prompt.WriteString("\n=== SUBTITLE ===\n")
	prompt.WriteString(text)

	return prompt.String()
}

func buildPrompt(op Operation, text string, opts *Options) string {
	if op == OperationTranslate {
		return buildTranslatePrompt(text, opts)
	}
	return buildOptimizePrompt(text, opts)
}
