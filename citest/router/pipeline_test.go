package router_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
	"github.com/telnet2/eventrouter/internal/testutil"
)

var _ = Describe("Event Router Pipeline", func() {
	var r *router.EventRouter
	var recs []*testutil.Recorder

	newRecorder := func(s scope.Scope) *testutil.Recorder {
		rec := testutil.NewRecorder(s)
		recs = append(recs, rec)
		return rec
	}

	BeforeEach(func() {
		var err error
		r, err = router.New(scope.Private, router.WithBufferSize(1024), router.WithPoolSize(4))
		Expect(err).NotTo(HaveOccurred())
		recs = nil
	})

	AfterEach(func() {
		Expect(r.AwaitEmpty(time.Minute)).To(BeFalse())
		Expect(r.Close()).To(Succeed())
		Expect(testutil.CloseAll(ctx, recs...)).To(Succeed())
	})

	Describe("delivery", func() {
		It("should deliver every event exactly once to every subscriber of its type", func() {
			const types, perType, subsPerType = 5, 200, 3

			byType := map[string][]*testutil.Recorder{}
			for i := 0; i < types; i++ {
				name := fmt.Sprintf("TYPE_%d", i)
				for j := 0; j < subsPerType; j++ {
					rec := newRecorder(scope.Federated)
					Expect(testutil.SubscribeTo(r, name, scope.Federated, rec)).To(Succeed())
					byType[name] = append(byType[name], rec)
				}
			}

			var wg sync.WaitGroup
			for name := range byType {
				name := name
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for i := 0; i < perType; i++ {
						Expect(testutil.Publish(r, name, "producer", []byte(fmt.Sprint(i)))).To(Succeed())
					}
				}()
			}
			wg.Wait()
			Expect(r.AwaitEmpty(time.Minute)).To(BeFalse())

			for name, subs := range byType {
				for _, rec := range subs {
					Expect(rec.WaitFor(perType, 10*time.Second)).To(Succeed())
					got := rec.Received()
					Expect(got).To(HaveLen(perType))
					for i, e := range got {
						Expect(e.Type).To(Equal(name))
						Expect(e.From).To(Equal("producer"))
						Expect(string(e.Payload)).To(Equal(fmt.Sprint(i)))
					}
				}
			}
		})

		It("should preserve from, payload and timestamp", func() {
			rec := newRecorder(scope.Private)
			Expect(testutil.SubscribeTo(r, "PING", scope.Private, rec)).To(Succeed())

			sent := event.Event{Type: "PING", From: "node-a", Payload: []byte{0, 1, 2, 255}, Timestamp: 1700000000000}
			Expect(r.Publish(sent)).To(Succeed())

			Eventually(rec.Received).WithTimeout(5 * time.Second).Should(ConsistOf(sent))
		})

		It("should not block dispatch on a slow subscriber", func() {
			release := make(chan struct{})
			slow := event.NewSubscriber(event.HandlerFunc(scope.Public, func(event.Event) { <-release }))
			fast := newRecorder(scope.Public)

			Expect(testutil.SubscribeTo(r, "SLOW", scope.Public, fast)).To(Succeed())
			Expect(r.Subscribe("SLOW", slow)).To(Succeed())
			Expect(testutil.SubscribeTo(r, "OTHER", scope.Public, fast)).To(Succeed())

			for i := 0; i < 100; i++ {
				Expect(testutil.Publish(r, "SLOW", "", nil)).To(Succeed())
				Expect(testutil.Publish(r, "OTHER", "", nil)).To(Succeed())
			}
			Expect(r.AwaitEmpty(10 * time.Second)).To(BeFalse())
			Expect(fast.WaitFor(200, 10*time.Second)).To(Succeed())

			Eventually(func() uint64 { return slow.Stats().Delivered }).
				WithTimeout(10 * time.Second).Should(Equal(uint64(100)))

			close(release)
			Expect(slow.Close(ctx)).To(Succeed())
			Expect(slow.Stats().Processed).To(Equal(uint64(100)))
		})
	})

	Describe("scopes", func() {
		It("should let broader scopes subscribe to narrower types only", func() {
			for _, s := range scope.All() {
				rec := newRecorder(s)
				err := r.Subscribe(router.Alias(scope.Federated), rec.Subscriber())
				if s.Dominates(scope.Federated) {
					Expect(err).NotTo(HaveOccurred(), s.String())
				} else {
					Expect(err).To(MatchError(event.ErrInsufficientScope), s.String())
				}
			}
			Expect(r.SubscriberCount(router.Alias(scope.Federated))).To(Equal(3))
		})

		It("should refuse types above the router's scope even for root actors", func() {
			root := newRecorder(scope.Root)
			err := r.RegisterEventType("SECRET", scope.Root, root)
			Expect(err).To(MatchError(event.ErrInsufficientScope))
			Expect(err.Error()).To(ContainSubstring("invalid scope for this router"))
		})
	})

	Describe("registration races", func() {
		It("should let exactly one concurrent registrant win", func() {
			const racers = 16
			results := make(chan error, racers)
			var wg sync.WaitGroup
			for i := 0; i < racers; i++ {
				rec := newRecorder(scope.Private)
				wg.Add(1)
				go func() {
					defer wg.Done()
					results <- r.RegisterEventType("CONTESTED", scope.Private, rec)
				}()
			}
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				if err == nil {
					wins++
				} else {
					Expect(err).To(MatchError(event.ErrAlreadyRegistered))
				}
			}
			Expect(wins).To(Equal(1))
		})
	})
})
