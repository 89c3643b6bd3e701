package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/queue"
	"basegraph.app/pagebot/internal/service"
)

var _ = Describe("Submitters", func() {
	events := []domain.Event{
		{TenantID: "pageX", ItemID: "c1", ThreadID: "p1", ParentID: "p1", Kind: domain.EventKindTopLevel},
		{TenantID: "pageX", ItemID: "c2", ThreadID: "p1", ParentID: "c1", Kind: domain.EventKindReply},
	}

	Describe("InlineSubmitter", func() {
		It("returns before the batch is evaluated", func() {
			engine := &mockEngine{done: make(chan struct{})}
			s := service.NewInlineSubmitter(engine, nil)

			ctx, cancel := context.WithCancel(context.Background())
			Expect(s.Submit(ctx, events)).To(Succeed())
			// a finished request must not abort evaluation
			cancel()

			Eventually(engine.Ingested).Should(HaveLen(1))
			close(engine.done)
			s.Wait()
			Expect(engine.Ingested()).To(HaveLen(2))
		})

		It("ignores empty batches", func() {
			engine := &mockEngine{}
			s := service.NewInlineSubmitter(engine, nil)
			Expect(s.Submit(context.Background(), nil)).To(Succeed())
			s.Wait()
			Expect(engine.Ingested()).To(BeEmpty())
		})
	})

	Describe("StreamSubmitter", func() {
		It("enqueues each valid event with the request trace id", func() {
			producer := &mockProducer{}
			s := service.NewStreamSubmitter(producer)

			traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
			spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
			ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
				TraceID: traceID,
				SpanID:  spanID,
			}))

			bad := domain.Event{TenantID: "pageX", Kind: domain.EventKindTopLevel}
			Expect(s.Submit(ctx, append([]domain.Event{bad}, events...))).To(Succeed())

			Expect(producer.messages).To(HaveLen(2))
			Expect(producer.messages[0].Event.ItemID).To(Equal("c1"))
			Expect(producer.messages[1].TraceID).To(Equal("4bf92f3577b34da6a3ce929d0e0e4736"))
		})

		It("reports enqueue failures after trying every event", func() {
			producer := &mockProducer{enqueueFn: func(_ context.Context, msg queue.EventMessage) error {
				if msg.Event.ItemID == "c1" {
					return errors.New("redis down")
				}
				return nil
			}}
			s := service.NewStreamSubmitter(producer)

			err := s.Submit(context.Background(), events)
			Expect(err).To(MatchError(ContainSubstring("enqueue c1: redis down")))
			Expect(producer.messages).To(HaveLen(2))
		})
	})
})
