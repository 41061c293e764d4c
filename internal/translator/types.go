package translator

import "context"

// Request is one translation attempt for a single template version and
// target language. ExtraInstructions carries reviewer feedback on
// retranslation.
type Request struct {
	HTML              string
	Subject           string
	SourceLanguage    string
	TargetLanguage    string
	ExtraInstructions string
}

// Result is the translated template content.
type Result struct {
	HTML    string
	Subject string
}

// Translator is the translation collaborator. A returned error is a business
// failure for that one language; callers record it on the translation row
// and never let it abort sibling languages.
type Translator interface {
	Translate(ctx context.Context, req Request) (*Result, error)
}
