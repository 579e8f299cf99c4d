package usecase

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"NewsDigest/internal/domain"
)

// PromptKind selects one of the model passes run over a batch of items.
type PromptKind int

const (
	PromptTitle PromptKind = iota
	PromptSummary
	PromptComments
)

func (k PromptKind) String() string {
	switch k {
	case PromptTitle:
		return "title"
	case PromptSummary:
		return "summary"
	case PromptComments:
		return "comments"
	}
	return fmt.Sprintf("prompt(%d)", int(k))
}

const replyContract = "The user message is a JSON array of strings. Reply with only a JSON array of strings " +
	"of exactly the same length and order, one result per input element. Do not add commentary."

// Prompts renders the model conversations for a target language.
type Prompts struct {
	name string
}

// NewPrompts resolves a BCP-47 tag such as "zh-Hans" into its English display name.
func NewPrompts(tag string) (Prompts, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return Prompts{}, fmt.Errorf("parse language %q: %w", tag, err)
	}
	name := display.English.Tags().Name(parsed)
	if name == "" {
		name = parsed.String()
	}
	return Prompts{name: name}, nil
}

// Language is the display name used inside prompts.
func (p Prompts) Language() string { return p.name }

// Messages builds the conversation for kind over texts.
func (p Prompts) Messages(kind PromptKind, texts []string) ([]domain.Message, error) {
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encode %s batch: %w", kind, err)
	}

	var instruction string
	switch kind {
	case PromptTitle:
		instruction = fmt.Sprintf("You translate news headlines into %s. Keep product names, "+
			"company names and code identifiers as they are.", p.name)
	case PromptSummary:
		instruction = fmt.Sprintf("You summarize articles in %s. Write two to four sentences per "+
			"article covering what happened and why it matters.", p.name)
	case PromptComments:
		instruction = fmt.Sprintf("You digest reader discussions in %s. Each element holds the top "+
			"comments of one story separated by \"---\"; summarize the main viewpoints in two or three sentences.", p.name)
	default:
		return nil, fmt.Errorf("unknown prompt kind %d", int(kind))
	}

	return []domain.Message{
		{Role: domain.RoleSystem, Content: instruction + "\n\n" + replyContract},
		{Role: domain.RoleUser, Content: string(payload)},
	}, nil
}
