package router_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
	"github.com/telnet2/eventrouter/internal/testutil"
)

var _ = Describe("Event Router Shutdown", func() {
	It("should dispatch everything committed before Close", func() {
		r, err := router.New(scope.Public, router.WithBufferSize(64), router.WithPoolSize(2))
		Expect(err).NotTo(HaveOccurred())

		recs := []*testutil.Recorder{testutil.CreatePublic(), testutil.CreatePublic()}
		for _, rec := range recs {
			Expect(testutil.SubscribeTo(r, "EVENT", scope.Public, rec)).To(Succeed())
		}
		for i := 0; i < 1000; i++ {
			Expect(testutil.Publish(r, "EVENT", "", nil)).To(Succeed())
		}

		Expect(r.Close()).To(Succeed())
		Expect(r.State()).To(Equal(router.Closed))
		Expect(r.Stats().Dispatched).To(Equal(uint64(1000)))

		// Subscribers outlive the router and still drain.
		Expect(testutil.CloseAll(ctx, recs...)).To(Succeed())
		for _, rec := range recs {
			Expect(rec.Count()).To(Equal(1000))
		}
	})

	It("should reject every operation once closed", func() {
		r, err := router.New(scope.Root)
		Expect(err).NotTo(HaveOccurred())
		rec := testutil.CreateRoot()
		defer rec.Close(ctx)

		Expect(r.Close()).To(Succeed())
		Expect(r.Close()).To(Succeed())

		Expect(r.Publish(event.NewEvent(router.AliasAll, "", nil))).To(MatchError(event.ErrClosed))
		Expect(r.Subscribe(router.AliasAll, rec.Subscriber())).To(MatchError(event.ErrClosed))
		Expect(r.RegisterEventType("NEW", scope.Root, rec)).To(MatchError(event.ErrClosed))
		Expect(r.AwaitEmpty(time.Second)).To(BeFalse())
	})

	It("should let a subscriber serve several routers", func() {
		a, err := router.New(scope.Public)
		Expect(err).NotTo(HaveOccurred())
		b, err := router.New(scope.Federated)
		Expect(err).NotTo(HaveOccurred())

		rec := testutil.CreateFederated()
		Expect(a.Subscribe(router.AliasAll, rec.Subscriber())).To(Succeed())
		Expect(b.Subscribe(router.AliasAll, rec.Subscriber())).To(Succeed())

		Expect(testutil.Publish(a, router.AliasAll, "a", nil)).To(Succeed())
		Expect(testutil.Publish(b, router.AliasAll, "b", nil)).To(Succeed())

		Expect(a.Close()).To(Succeed())
		Expect(b.Close()).To(Succeed())
		Expect(rec.Close(ctx)).To(Succeed())

		froms := []string{}
		for _, e := range rec.Received() {
			froms = append(froms, e.From)
		}
		Expect(froms).To(ConsistOf("a", "b"))
	})
})
