package brain_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/common/llm"
	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/admission"
	"basegraph.app/pagebot/internal/brain"
	"basegraph.app/pagebot/internal/domain"
)

var _ = Describe("Composer", func() {
	var (
		ctx      context.Context
		model    *mockLLM
		composer *brain.Composer
		tenant   config.Tenant
	)

	BeforeEach(func() {
		ctx = context.Background()
		model = &mockLLM{}
		composer = brain.NewComposer(model, config.LLMConfig{Temperature: 0.7, MaxTokens: 300, MaxReplyChars: 80})
		tenant = config.Tenant{ID: "pageX", Name: "Kitchen Hacks", Persona: "Mia, the page admin", Language: "en"}
	})

	Describe("Reply", func() {
		It("builds a prompt from the comment, the post and the signals", func() {
			model.answers = []brain.ReplyOutput{{Text: `"So glad it worked for you! Which hack is next?"`, Language: "en"}}

			text, err := composer.Reply(ctx, brain.ReplyInput{
				Tenant:    tenant,
				Comment:   domain.Item{ID: "c1", AuthorName: "Ann", Text: "This trick actually works!"},
				Container: domain.Container{Caption: "Five kitchen hacks"},
				Signals:   admission.Signals{Question: true},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("So glad it worked for you! Which hack is next?"))

			Expect(model.requests).To(HaveLen(1))
			req := model.requests[0]
			Expect(req.SystemPrompt).To(ContainSubstring("Mia, the page admin"))
			Expect(req.SystemPrompt).To(ContainSubstring("English"))
			Expect(req.SystemPrompt).To(ContainSubstring("asked something"))
			Expect(req.UserPrompt).To(ContainSubstring("Five kitchen hacks"))
			Expect(req.UserPrompt).To(ContainSubstring("Ann wrote"))
			Expect(*req.Temperature).To(Equal(0.7))
			Expect(req.Schema).NotTo(BeNil())
		})

		It("includes the parent comment for replies", func() {
			model.answers = []brain.ReplyOutput{{Text: "Exactly right!", Language: "en"}}

			_, err := composer.Reply(ctx, brain.ReplyInput{
				Tenant:  tenant,
				Comment: domain.Item{Text: "agreed"},
				Parent:  &domain.Item{Text: "Salt first, then oil"},
				Signals: admission.Signals{InThread: true},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(model.requests[0].UserPrompt).To(ContainSubstring("Salt first, then oil"))
		})

		It("asks again once when the language is wrong", func() {
			model.answers = []brain.ReplyOutput{
				{Text: "Спасибо большое!", Language: "ru"},
				{Text: "Thanks so much!", Language: "en"},
			}

			text, err := composer.Reply(ctx, brain.ReplyInput{Tenant: tenant, Comment: domain.Item{Text: "love it"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Thanks so much!"))
			Expect(model.requests).To(HaveLen(2))
			Expect(model.requests[1].UserPrompt).To(ContainSubstring("was not written in English"))
		})

		It("gives up after the second bad answer", func() {
			model.answers = []brain.ReplyOutput{
				{Text: "See https://example.com", Language: "en"},
				{Text: strings.Repeat("long ", 40), Language: "en"},
			}

			_, err := composer.Reply(ctx, brain.ReplyInput{Tenant: tenant, Comment: domain.Item{Text: "love it"}})
			var genErr *brain.GenerationError
			Expect(errors.As(err, &genErr)).To(BeTrue())
			Expect(genErr.Reason).To(ContainSubstring("longer than 80"))
			Expect(brain.IsGenerationError(err)).To(BeTrue())
		})

		It("treats an empty answer as a failure", func() {
			model.answers = []brain.ReplyOutput{{Text: "  ", Language: "en"}, {Text: "", Language: "en"}}

			_, err := composer.Reply(ctx, brain.ReplyInput{Tenant: tenant, Comment: domain.Item{Text: "love it"}})
			Expect(brain.IsGenerationError(err)).To(BeTrue())
		})

		It("retries a retryable model error", func() {
			model.errs = []error{llm.ErrEmptyCompletion}
			model.answers = []brain.ReplyOutput{{}, {Text: "Thank you!", Language: "en"}}

			text, err := composer.Reply(ctx, brain.ReplyInput{Tenant: tenant, Comment: domain.Item{Text: "love it"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Thank you!"))
		})

		It("does not retry a cancelled call", func() {
			model.errs = []error{context.Canceled}

			_, err := composer.Reply(ctx, brain.ReplyInput{Tenant: tenant, Comment: domain.Item{Text: "love it"}})
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(model.requests).To(HaveLen(1))
		})
	})

	Describe("Opening", func() {
		It("uses the post text and the seed hint", func() {
			tenant.SeedHint = "ask which hack they will try first"
			model.answers = []brain.ReplyOutput{{Text: "Which one are you trying tonight?", Language: "en"}}

			text, err := composer.Opening(ctx, brain.OpeningInput{
				Tenant: tenant,
				Post:   domain.Item{ID: "p9", Text: "Three ways to peel garlic"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Which one are you trying tonight?"))
			Expect(model.requests[0].SystemPrompt).To(ContainSubstring("ask which hack"))
			Expect(model.requests[0].UserPrompt).To(ContainSubstring("Three ways to peel garlic"))
		})
	})
})
