package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"basegraph.app/pagebot/common/llm"
	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/admission"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/metrics"
)

const maxAttempts = 2

// ReplyOutput is the schema the model answers in.
type ReplyOutput struct {
	Text     string `json:"text" jsonschema:"required,description=The comment to post. Plain text only."`
	Language string `json:"language" jsonschema:"required,description=ISO 639-1 code of the language the text is written in"`
}

var replySchema = llm.GenerateSchema[ReplyOutput]()

// GenerationError means the model produced nothing postable.
type GenerationError struct {
	Attempts int
	Reason   string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed after %d attempt(s): %s: %v", e.Attempts, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Composer struct {
	llm         llm.Client
	temperature float64
	maxTokens   int
	maxChars    int
}

func NewComposer(client llm.Client, cfg config.LLMConfig) *Composer {
	maxChars := cfg.MaxReplyChars
	if maxChars <= 0 {
		maxChars = 400
	}
	return &Composer{
		llm:         client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxChars:    maxChars,
	}
}

type ReplyInput struct {
	Tenant    config.Tenant
	Comment   domain.Item
	Parent    *domain.Item
	Container domain.Container
	Signals   admission.Signals
}

// Reply writes an answer to a comment in the page's voice.
func (c *Composer) Reply(ctx context.Context, in ReplyInput) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "pagebot.brain.reply"})

	var user strings.Builder
	writeContainer(&user, in.Container)
	if in.Parent != nil && in.Parent.Text != "" {
		fmt.Fprintf(&user, "They are replying to this comment:\n%q\n\n", in.Parent.Text)
	}
	author := in.Comment.AuthorName
	if author == "" {
		author = "A follower"
	}
	fmt.Fprintf(&user, "%s wrote:\n%q\n\nWrite the page's reply.", author, in.Comment.Text)

	return c.Generate(ctx, Prompt{
		System:   replySystemPrompt(in.Tenant, in.Signals),
		User:     user.String(),
		Language: in.Tenant.Language,
	})
}

type OpeningInput struct {
	Tenant    config.Tenant
	Post      domain.Item
	Container domain.Container
}

// Opening writes the first comment under one of the page's own posts.
func (c *Composer) Opening(ctx context.Context, in OpeningInput) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "pagebot.brain.opening"})

	var system strings.Builder
	fmt.Fprintf(&system, "You are %s, posting on the page %q.\n", in.Tenant.Persona, in.Tenant.Name)
	fmt.Fprintf(&system, "Write the first comment under the page's new post in %s. ", languageName(in.Tenant.Language))
	system.WriteString("One or two short sentences that invite people to join the conversation, ending with a simple question. ")
	system.WriteString("No hashtags, no links, no emojis at the start.")
	if in.Tenant.SeedHint != "" {
		fmt.Fprintf(&system, "\nGuidance from the page owner: %s", in.Tenant.SeedHint)
	}

	var user strings.Builder
	container := in.Container
	if container.Caption == "" {
		container.Caption = in.Post.Text
	}
	writeContainer(&user, container)
	user.WriteString("Write the opening comment.")

	return c.Generate(ctx, Prompt{
		System:   system.String(),
		User:     user.String(),
		Language: in.Tenant.Language,
	})
}

type Prompt struct {
	System string
	User   string
	// Language is the ISO 639-1 code the answer must be in. Empty accepts any.
	Language string
}

// Generate asks the model for a postable comment. An answer in the wrong
// language or breaking the format rules is re-requested once with feedback.
func (c *Composer) Generate(ctx context.Context, p Prompt) (string, error) {
	user := p.User
	var lastReason string
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var out ReplyOutput
		_, err := c.llm.Chat(ctx, llm.Request{
			SystemPrompt: p.System,
			UserPrompt:   user,
			SchemaName:   "page_comment",
			Schema:       replySchema,
			MaxTokens:    c.maxTokens,
			Temperature:  llm.Temp(c.temperature),
		}, &out)
		if err != nil {
			lastReason, lastErr = "model call failed", err
			if !llm.IsRetryable(err) {
				break
			}
			slog.WarnContext(ctx, "generation attempt failed", "attempt", attempt, "error", err)
			continue
		}

		text := clean(out.Text)
		reason := c.check(text, out.Language, p.Language)
		if reason == "" {
			slog.DebugContext(ctx, "reply generated", "attempt", attempt, "chars", utf8.RuneCountInString(text))
			return text, nil
		}

		slog.InfoContext(ctx, "generated text rejected",
			"attempt", attempt,
			"reason", reason,
			"text", logger.Truncate(text, 120))
		lastReason, lastErr = reason, nil
		user = p.User + fmt.Sprintf("\n\nYour previous answer was rejected because it %s. Try again.", reason)
	}

	metrics.GenerationFailures.Inc()
	return "", &GenerationError{Attempts: maxAttempts, Reason: lastReason, Err: lastErr}
}

// check returns why text cannot be posted, or "" if it can.
func (c *Composer) check(text, gotLang, wantLang string) string {
	switch {
	case text == "":
		return "was empty"
	case utf8.RuneCountInString(text) > c.maxChars:
		return fmt.Sprintf("was longer than %d characters", c.maxChars)
	case containsLink(text):
		return "contained a link"
	case wantLang != "" && !sameLanguage(gotLang, wantLang):
		return fmt.Sprintf("was not written in %s", languageName(wantLang))
	}
	return ""
}

func replySystemPrompt(t config.Tenant, s admission.Signals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, replying to comments on the page %q.\n", t.Persona, t.Name)
	fmt.Fprintf(&b, "Always answer in %s. ", languageName(t.Language))
	b.WriteString("Sound like a real person: one or two short sentences, warm and specific to what was said. ")
	b.WriteString("You may end with a short question to keep the conversation going. ")
	b.WriteString("No hashtags, no links, never mention that you are automated.")
	if s.Question {
		b.WriteString("\nThe commenter asked something. Answer briefly, or say you will look into it if you cannot know.")
	}
	if s.Negative {
		b.WriteString("\nThe commenter is unhappy. Stay calm and kind, acknowledge the problem, never argue.")
	}
	if s.InThread {
		b.WriteString("\nThis is part of a thread. Reply to the latest comment with the earlier one in mind.")
	}
	return b.String()
}

func writeContainer(b *strings.Builder, c domain.Container) {
	if c.Caption != "" {
		fmt.Fprintf(b, "The post says:\n%q\n", logger.Truncate(c.Caption, 800))
	}
	for _, a := range c.Attachments {
		switch {
		case a.Title != "" && a.Description != "":
			fmt.Fprintf(b, "Attached %s: %s (%s)\n", a.MediaType, a.Title, logger.Truncate(a.Description, 200))
		case a.Title != "":
			fmt.Fprintf(b, "Attached %s: %s\n", a.MediaType, a.Title)
		}
	}
	if c.Caption != "" || len(c.Attachments) > 0 {
		b.WriteString("\n")
	}
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"«»“”")
	return strings.TrimSpace(s)
}

func containsLink(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "www.")
}

func sameLanguage(got, want string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if code, _, ok := strings.Cut(s, "-"); ok {
			return code
		}
		return s
	}
	return norm(got) == norm(want)
}

var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
	"uk": "Ukrainian",
	"de": "German",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"pt": "Portuguese",
	"pl": "Polish",
	"tr": "Turkish",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// IsGenerationError reports whether err came from the composer.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
