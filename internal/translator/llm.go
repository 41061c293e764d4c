package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/email-template-translator/pkg/log"
)

// chatClient is the slice of the LLM client the translator needs.
type chatClient interface {
	SimpleChat(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// minDetectableTextLen is the least amount of stripped visible text worth
// running language detection on; below that the heuristic is noise.
const minDetectableTextLen = 20

type llmTranslator struct {
	client chatClient
}

// NewLLMTranslator creates the LLM-backed email template translator.
func NewLLMTranslator(client chatClient) Translator {
	return &llmTranslator{client: client}
}

type translationOutput struct {
	HTML    string `json:"html"`
	Subject string `json:"subject"`
}

func (t *llmTranslator) Translate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, fmt.Errorf("html content is empty")
	}
	if req.TargetLanguage == "" {
		return nil, fmt.Errorf("target language is required")
	}

	systemPrompt, err := buildSystemPrompt(req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"subject": req.Subject,
		"html":    req.HTML,
	})
	if err != nil {
		return nil, fmt.Errorf("encode translation input: %w", err)
	}

	content, err := t.client.SimpleChat(ctx, string(payload), systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("translation call failed: %w", err)
	}

	output, err := parseOutput(content)
	if err != nil {
		return nil, err
	}

	if err := auditPlaceholders(req.HTML, output.HTML); err != nil {
		return nil, err
	}

	checkOutputLanguage(output.HTML, req.TargetLanguage)

	return &Result{HTML: output.HTML, Subject: output.Subject}, nil
}

func buildSystemPrompt(req Request) (string, error) {
	targetName, targetNative, err := languageNames(req.TargetLanguage)
	if err != nil {
		return "", fmt.Errorf("invalid target language %q: %w", req.TargetLanguage, err)
	}

	var b strings.Builder
	b.WriteString("You are a professional localization engine for transactional email templates.\n")
	if req.SourceLanguage != "" {
		if srcName, _, err := languageNames(req.SourceLanguage); err == nil {
			fmt.Fprintf(&b, "Translate the given email template from %s into %s (%s).\n", srcName, targetName, targetNative)
		} else {
			fmt.Fprintf(&b, "Translate the given email template into %s (%s).\n", targetName, targetNative)
		}
	} else {
		fmt.Fprintf(&b, "Translate the given email template into %s (%s).\n", targetName, targetNative)
	}
	b.WriteString(`
Hard constraints:
1. Keep every templating placeholder such as {{name}}, {{{rawHtml}}}, {{#if ...}}, {{#each ...}} and {{/each}} byte-for-byte unchanged.
2. Keep all HTML tags, attributes, URLs, anchors and inline styles exactly as they are.
3. Translate only human-readable text content and the subject line.
4. Preserve the tone and formality appropriate for transactional email in the target language.

The input is a JSON object with "subject" and "html" fields.
Respond with ONLY a JSON object of the same shape: {"subject": "...", "html": "..."}. No explanation, no code fences.`)

	if req.ExtraInstructions != "" {
		fmt.Fprintf(&b, "\n\nReviewer feedback to apply to this translation:\n%s", req.ExtraInstructions)
	}
	return b.String(), nil
}

// languageNames resolves a BCP 47 code to its English display name and its
// self-referential native name.
func languageNames(code string) (name, native string, err error) {
	tag, err := language.Parse(code)
	if err != nil {
		return "", "", err
	}
	name = display.English.Languages().Name(tag)
	native = display.Self.Name(tag)
	if name == "" {
		name = code
	}
	if native == "" {
		native = name
	}
	return name, native, nil
}

func parseOutput(content string) (*translationOutput, error) {
	trimmed := strings.TrimSpace(content)
	// Some models wrap JSON in markdown fences despite instructions.
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var output translationOutput
	if err := json.Unmarshal([]byte(trimmed), &output); err != nil {
		return nil, fmt.Errorf("unexpected translation output format: %w", err)
	}
	if strings.TrimSpace(output.HTML) == "" {
		return nil, fmt.Errorf("translation output has empty html")
	}
	if strings.TrimSpace(output.Subject) == "" {
		return nil, fmt.Errorf("translation output has empty subject")
	}
	return &output, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\{?[^{}]*\}\}\}?`)

// auditPlaceholders fails the attempt when the translated html does not
// carry exactly the placeholders of the source. A collaborator that mangles
// templating produces a broken template no matter how good the prose is.
func auditPlaceholders(original, translated string) error {
	want := placeholderPattern.FindAllString(original, -1)
	got := placeholderPattern.FindAllString(translated, -1)
	sort.Strings(want)
	sort.Strings(got)

	if len(want) != len(got) {
		return fmt.Errorf("placeholder mismatch: source has %d placeholders, translation has %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("placeholder mismatch: %q was altered to %q", want[i], got[i])
		}
	}
	return nil
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	entityPattern = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// visibleText strips markup and placeholders, leaving roughly the text a
// recipient would read.
func visibleText(html string) string {
	text := placeholderPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = entityPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// checkOutputLanguage runs a heuristic detection over the translated visible
// text and warns when it does not look like the target language. Detection
// is too noisy on short marketing copy to treat as a failure.
func checkOutputLanguage(html, targetCode string) {
	text := visibleText(html)
	if len(text) < minDetectableTextLen {
		return
	}
	tag, err := language.Parse(targetCode)
	if err != nil {
		return
	}
	base, _ := tag.Base()

	detected := whatlanggo.DetectLang(text).Iso6391()
	if detected != "" && detected != base.String() {
		log.Warn("Translated text for %s detected as %s", targetCode, detected)
	}
}
