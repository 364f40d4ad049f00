package paging_test

import (
	"context"
	"strconv"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/friendsofgo/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nrfta/paging-cache"
	"github.com/nrfta/paging-cache/store"
	"github.com/nrfta/paging-cache/store/memstore"
)

const queryKey = "feed:home"

var _ = Describe("StablePaginator", func() {
	var (
		ctx    context.Context
		st     *memstore.Store
		source *fakeSource
		logger *logrus.Logger
		hook   *logtest.Hook
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = memstore.New()
		logger, hook = quietLogger()
		DeferCleanup(func() { _ = st.Close() })
	})

	newPaginator := func(cfg paging.Config, opts ...paging.Option) *paging.StablePaginator[post] {
		all := append([]paging.Option{paging.WithConfig(cfg), paging.WithLogger(logger)}, opts...)
		p, err := paging.New[post](st, queryKey, source, nil, postID, all...)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = p.Close() })
		return p
	}

	items := func(p *paging.StablePaginator[post]) func() []int {
		return func() []int { return sortedKeys(p.Items()) }
	}

	Describe("New", func() {
		BeforeEach(func() {
			source = newFakeSource(10, 10)
		})

		It("should require a store, a source and an id function", func() {
			_, err := paging.New[post](nil, queryKey, source, nil, postID)
			Expect(err).To(HaveOccurred())

			_, err = paging.New[post](st, queryKey, nil, nil, postID)
			Expect(err).To(HaveOccurred())

			_, err = paging.New[post](st, queryKey, source, nil, nil)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an invalid config", func() {
			cfg := paging.DefaultConfig()
			cfg.PageSize = 0

			_, err := paging.New[post](st, queryKey, source, nil, postID, paging.WithConfig(cfg))

			var cfgErr *paging.ConfigError
			Expect(err).To(BeAssignableToTypeOf(cfgErr))
		})

		It("should start INITIAL with an empty projection", func() {
			p := newPaginator(testConfig(10, 1, 3))

			Expect(p.State()).To(Equal(paging.StateInitial))
			Expect(p.Items()).To(BeEmpty())
			Expect(p.TotalCount()).To(Equal(0))
			Expect(p.QueryKey()).To(Equal(queryKey))
			Expect(p.Config().PageSize).To(Equal(10))
		})

		It("should project pages already in the store", func() {
			err := st.InTx(ctx, func(tx store.Tx) error {
				Expect(tx.UpsertItem(ctx, store.CachedItem{ID: 7, Payload: `{"id":7,"title":"cached"}`})).To(Succeed())
				return tx.InsertEntries(ctx, []store.ListingEntry{{QueryKey: queryKey, ItemID: 7, Order: 10, PageNumber: 1}})
			})
			Expect(err).ToNot(HaveOccurred())

			p := newPaginator(testConfig(10, 1, 3))

			Eventually(p.Items).Should(HaveKeyWithValue(10, post{ID: 7, Title: "cached"}))
			Expect(p.State()).To(Equal(paging.StateInitial))
		})
	})

	Describe("first page and skip ahead", func() {
		BeforeEach(func() {
			source = newFakeSource(25, 10)
		})

		It("should load page 0 and settle on IDLE", func() {
			p := newPaginator(testConfig(10, 0, 3))

			p.Reset(0)

			Eventually(p.State).Should(Equal(paging.StateIdle))
			Eventually(items(p)).Should(Equal(indexRange(0, 10)))
			Expect(p.TotalCount()).To(Equal(25))
			Expect(p.Items()[3]).To(Equal(post{ID: 3, Title: titleOf(3)}))
		})

		It("should jump to the page of the reset index and reach END", func() {
			p := newPaginator(testConfig(10, 0, 3))

			p.Reset(20)

			Eventually(p.State).Should(Equal(paging.StateEnd))
			Eventually(items(p)).Should(Equal(indexRange(20, 25)))
			Expect(source.callsTo(0)).To(Equal(0))
			Expect(source.callsTo(2)).To(Equal(1))
		})

		It("should keep earlier pages at their own offsets after skipping ahead", func() {
			p := newPaginator(testConfig(10, 0, 3))

			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			p.Reset(20)
			Eventually(p.State).Should(Equal(paging.StateEnd))

			Eventually(items(p)).Should(Equal(append(indexRange(0, 10), indexRange(20, 25)...)))
			Expect(p.Items()).ToNot(HaveKey(10))
		})

		It("should clamp a reset below the initial page", func() {
			cfg := testConfig(10, 0, 3)
			cfg.InitialPageKey = 1
			p := newPaginator(cfg)

			p.Reset(0)

			Eventually(p.State).Should(Equal(paging.StateIdle))
			Expect(source.callsTo(0)).To(Equal(0))
			Eventually(items(p)).Should(Equal(indexRange(10, 20)))
		})

		It("should prefetch following pages while the total is unknown", func() {
			p := newPaginator(testConfig(10, 2, 5))

			p.Reset(0)

			Eventually(p.State).Should(Equal(paging.StateEnd))
			Eventually(items(p)).Should(Equal(indexRange(0, 25)))
			Expect(source.callsTo(3)).To(Equal(0))
		})

		It("should not prefetch past the known total", func() {
			p := newPaginator(testConfig(10, 3, 5))

			p.Reset(0)
			Eventually(func() int { return source.callsTo(3) }).Should(Equal(1))
			Eventually(items(p)).Should(Equal(indexRange(0, 25)))
			Eventually(p.State).Should(Equal(paging.StateEnd))

			p.OnPrefetch(2)
			Eventually(func() int { return source.callsTo(2) }).Should(Equal(2))
			Consistently(func() int { return source.callsTo(3) }, 100*time.Millisecond).Should(Equal(1))
		})
	})

	Describe("load states", func() {
		BeforeEach(func() {
			source = newFakeSource(30, 10)
		})

		It("should ignore prefetch while INITIAL", func() {
			p := newPaginator(testConfig(10, 1, 3))

			p.OnPrefetch(0)

			Consistently(func() int { return source.callsTo(0) }, 100*time.Millisecond).Should(Equal(0))
			Expect(p.State()).To(Equal(paging.StateInitial))
		})

		It("should report NEXT while a prefetch is in flight", func() {
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			source.hold()
			p.OnPrefetch(1)

			Eventually(p.State).Should(Equal(paging.StateNext))

			source.release()
			Eventually(p.State).Should(Equal(paging.StateIdle))
			Eventually(items(p)).Should(Equal(indexRange(0, 20)))
		})

		It("should not report NEXT for a forced load", func() {
			p := newPaginator(testConfig(10, 0, 3))

			source.hold()
			p.Reset(0)
			Eventually(func() int { return source.callsTo(0) }).Should(Equal(1))

			Consistently(p.State, 50*time.Millisecond).Should(Equal(paging.StateInitial))
			source.release()
			Eventually(p.State).Should(Equal(paging.StateIdle))
		})

		It("should reach END once the last page is stored", func() {
			p := newPaginator(testConfig(10, 0, 5))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			p.OnPrefetch(1)
			Eventually(func() int { return source.callsTo(1) }).Should(Equal(1))
			Eventually(p.State).Should(Equal(paging.StateIdle))

			p.OnPrefetch(2)
			Eventually(p.State).Should(Equal(paging.StateEnd))
			Eventually(items(p)).Should(Equal(indexRange(0, 30)))

			latest, err := st.LatestPage(ctx, queryKey)
			Expect(err).ToNot(HaveOccurred())
			Expect(latest.PageNumber).To(Equal(int64(2)))
			Expect(latest.HasNext()).To(BeFalse())
		})

		It("should treat an empty final page as the end", func() {
			source.override(3, paging.Payload[post]{TotalCount: 30})
			p := newPaginator(testConfig(10, 0, 5))

			p.Reset(30)

			Eventually(p.State).Should(Equal(paging.StateEnd))
			Expect(p.Items()).To(BeEmpty())

			pages, err := st.PageNumbers(ctx, queryKey)
			Expect(err).ToNot(HaveOccurred())
			Expect(pages).To(Equal([]int64{3}))
		})

		It("should stream state changes to watchers", func() {
			p := newPaginator(testConfig(10, 0, 3))
			states, stop := p.WatchState()
			defer stop()

			Expect(states).To(Receive(Equal(paging.StateInitial)))

			p.Reset(0)
			Eventually(states).Should(Receive(Equal(paging.StateIdle)))
		})

		It("should stream projections to watchers", func() {
			p := newPaginator(testConfig(10, 0, 3))
			updates, stop := p.WatchItems()
			defer stop()

			p.Reset(0)

			Eventually(updates).Should(Receive(HaveLen(10)))
		})
	})

	Describe("concurrent requests", func() {
		BeforeEach(func() {
			source = newFakeSource(100, 10)
		})

		It("should never fetch the same page twice at once", func() {
			p := newPaginator(testConfig(10, 1, 5))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			source.hold()
			for i := 0; i < 20; i++ {
				go p.OnPrefetch(3)
			}
			Eventually(func() int { return source.callsTo(3) }).Should(BeNumerically(">=", 1))
			Consistently(func() int { return source.maxConcurrent(3) }, 50*time.Millisecond).Should(Equal(1))

			source.release()
			Eventually(p.State).Should(Equal(paging.StateIdle))
			Expect(source.maxConcurrent(3)).To(Equal(1))
			Expect(source.maxConcurrent(4)).To(BeNumerically("<=", 1))
		})

		It("should bound concurrent loads with the worker pool", func() {
			p := newPaginator(testConfig(10, 3, 10), paging.WithMaxConcurrentLoads(1))

			source.hold()
			p.Reset(0)

			Eventually(func() int { return source.callsTo(0) + source.callsTo(1) + source.callsTo(2) + source.callsTo(3) }).
				Should(Equal(1))
			Consistently(func() int {
				return source.callsTo(0) + source.callsTo(1) + source.callsTo(2) + source.callsTo(3)
			}, 50*time.Millisecond).Should(Equal(1))

			source.release()
			Eventually(p.State).Should(Equal(paging.StateIdle))
			Eventually(items(p)).Should(Equal(indexRange(0, 40)))
		})
	})

	Describe("page replacement", func() {
		BeforeEach(func() {
			source = newFakeSource(30, 10)
		})

		It("should store a reloaded page once", func() {
			p := newPaginator(testConfig(10, 0, 3))

			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))
			p.Reset(0)
			Eventually(func() int { return source.callsTo(0) }).Should(Equal(2))
			Eventually(p.State).Should(Equal(paging.StateIdle))

			Expect(st.PageEntryCount(queryKey, 0)).To(Equal(10))
			Expect(st.ItemCount()).To(Equal(10))
			Eventually(items(p)).Should(Equal(indexRange(0, 10)))
		})

		It("should replace the entries of a page with the latest load", func() {
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			fresh := make([]post, 0, 4)
			for id := int64(100); id < 104; id++ {
				fresh = append(fresh, post{ID: id, Title: "fresh"})
			}
			source.override(0, paging.Payload[post]{TotalCount: 30, IsMore: true, Records: fresh})

			p.Reset(0)

			Eventually(items(p)).Should(Equal(indexRange(0, 4)))
			Expect(p.Items()[0].ID).To(Equal(int64(100)))
			Expect(st.PageEntryCount(queryKey, 0)).To(Equal(4))
			Expect(st.ItemCount()).To(Equal(14))
		})

		It("should record the next page key", func() {
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			latest, err := st.LatestPage(ctx, queryKey)
			Expect(err).ToNot(HaveOccurred())
			Expect(latest.NextPageKey).To(Equal(null.StringFrom(strconv.Itoa(1))))
			Expect(latest.TotalCount).To(Equal(int64(30)))
		})
	})

	Describe("pruning", func() {
		BeforeEach(func() {
			source = newFakeSource(100, 10)
		})

		It("should keep the stored page count within the budget", func() {
			p := newPaginator(testConfig(10, 0, 1))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			storedPages := func() []int64 {
				pages, err := st.PageNumbers(ctx, queryKey)
				Expect(err).ToNot(HaveOccurred())
				return pages
			}

			p.OnPrefetch(1)
			Eventually(storedPages).Should(Equal([]int64{0, 1}))
			p.OnPrefetch(2)
			Eventually(storedPages).Should(Equal([]int64{0, 1, 2}))
			p.OnPrefetch(3)
			Eventually(storedPages).Should(Equal([]int64{3}))

			Eventually(items(p)).Should(Equal(indexRange(30, 40)))
			Expect(st.ItemCount()).To(Equal(40))
		})

		It("should never exceed the budget plus slack", func() {
			p := newPaginator(testConfig(10, 1, 2))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			for page := 1; page < 10; page++ {
				p.OnPrefetch(page)
				Eventually(func() int { return source.callsTo(page) }).Should(BeNumerically(">=", 1))
				Eventually(p.State).Should(Or(Equal(paging.StateIdle), Equal(paging.StateEnd)))

				pages, err := st.PageNumbers(ctx, queryKey)
				Expect(err).ToNot(HaveOccurred())
				Expect(len(pages)).To(BeNumerically("<=", 2+2))
			}
		})
	})

	Describe("failures", func() {
		BeforeEach(func() {
			source = newFakeSource(30, 10)
		})

		It("should report ERROR when nothing is cached", func() {
			source.fail(0, errBoom)
			p := newPaginator(testConfig(10, 0, 3))

			p.Reset(0)

			Eventually(p.State).Should(Equal(paging.StateError("fetch page 0: boom")))
			Expect(p.State().IsError()).To(BeTrue())
			Expect(p.Items()).To(BeEmpty())
		})

		It("should keep ERROR until a new load starts", func() {
			source.fail(0, errBoom)
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(func() bool { return p.State().IsError() }).Should(BeTrue())

			source.fail(0, nil)
			p.Reset(0)

			Eventually(p.State).Should(Equal(paging.StateIdle))
			Eventually(items(p)).Should(Equal(indexRange(0, 10)))
		})

		It("should keep the cached projection when a later load fails", func() {
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			Eventually(items(p)).Should(Equal(indexRange(0, 10)))

			source.fail(1, errBoom)
			p.OnPrefetch(1)

			Eventually(func() int { return source.callsTo(1) }).Should(Equal(1))
			Eventually(p.State).Should(Equal(paging.StateIdle))
			Consistently(func() bool { return p.State().IsError() }, 50*time.Millisecond).Should(BeFalse())
			Eventually(items(p)).Should(Equal(indexRange(0, 10)))

			Eventually(func() []string {
				var msgs []string
				for _, e := range hook.AllEntries() {
					if e.Level == logrus.WarnLevel {
						msgs = append(msgs, e.Message)
					}
				}
				return msgs
			}).Should(ContainElement("page load failed, keeping cached items"))
		})

		It("should leave no trace of a failed page", func() {
			source.fail(1, errBoom)
			p := newPaginator(testConfig(10, 1, 3))

			p.Reset(0)

			Eventually(func() int { return source.callsTo(1) }).Should(Equal(1))
			Eventually(func() int { return st.PageEntryCount(queryKey, 0) }).Should(Equal(10))
			Consistently(func() int { return st.PageEntryCount(queryKey, 1) }, 50*time.Millisecond).Should(Equal(0))

			pages, err := st.PageNumbers(ctx, queryKey)
			Expect(err).ToNot(HaveOccurred())
			Expect(pages).To(Equal([]int64{0}))
		})
	})

	Describe("cancellation", func() {
		BeforeEach(func() {
			source = newFakeSource(30, 10)
		})

		It("should cancel loads superseded by a reset without reporting ERROR", func() {
			p := newPaginator(testConfig(10, 0, 3))

			source.hold()
			p.Reset(0)
			Eventually(func() int { return source.callsTo(0) }).Should(Equal(1))

			p.Reset(20)
			Eventually(func() int { return source.callsTo(2) }).Should(Equal(1))
			source.release()

			Eventually(p.State).Should(Equal(paging.StateEnd))
			Eventually(items(p)).Should(Equal(indexRange(20, 30)))
			Expect(st.PageEntryCount(queryKey, 0)).To(Equal(0))
		})

		It("should cancel in-flight loads on Close", func() {
			p := newPaginator(testConfig(10, 0, 3))

			source.hold()
			p.Reset(0)
			Eventually(func() int { return source.callsTo(0) }).Should(Equal(1))

			Expect(p.Close()).To(Succeed())

			Expect(p.State()).To(Equal(paging.StateInitial))
			Expect(st.PageEntryCount(queryKey, 0)).To(Equal(0))
		})

		It("should report a timeout inside the page source as ERROR", func() {
			timeout := paging.PageSourceFunc[post](func(ctx context.Context, page int) (paging.Payload[post], error) {
				reqCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
				defer cancel()
				<-reqCtx.Done()
				return paging.Payload[post]{}, errors.Wrap(reqCtx.Err(), "GET /posts")
			})
			p, err := paging.New[post](st, queryKey, timeout, nil, postID,
				paging.WithConfig(testConfig(10, 0, 3)), paging.WithLogger(logger))
			Expect(err).ToNot(HaveOccurred())
			DeferCleanup(func() { _ = p.Close() })

			p.Reset(0)

			Eventually(p.State).Should(Equal(paging.StateError("fetch page 0: GET /posts: context deadline exceeded")))
			Expect(p.Items()).To(BeEmpty())
		})

		It("should not report ERROR for a load whose scope was cancelled", func() {
			started := make(chan struct{}, 1)
			dropped := paging.PageSourceFunc[post](func(ctx context.Context, page int) (paging.Payload[post], error) {
				started <- struct{}{}
				<-ctx.Done()
				return paging.Payload[post]{}, errors.New("connection reset")
			})
			p, err := paging.New[post](st, queryKey, dropped, nil, postID,
				paging.WithConfig(testConfig(10, 0, 3)), paging.WithLogger(logger))
			Expect(err).ToNot(HaveOccurred())

			p.Reset(0)
			Eventually(started).Should(Receive())

			Expect(p.Close()).To(Succeed())

			Expect(p.State()).To(Equal(paging.StateInitial))
			for _, e := range hook.AllEntries() {
				Expect(e.Level).ToNot(Equal(logrus.ErrorLevel))
			}
		})

		It("should ignore requests after Close", func() {
			p := newPaginator(testConfig(10, 0, 3))
			Expect(p.Close()).To(Succeed())

			p.Reset(0)
			p.OnPrefetch(0)

			Consistently(func() int { return source.callsTo(0) }, 50*time.Millisecond).Should(Equal(0))
			Expect(p.UpdateItem(ctx, 1, post{ID: 1})).To(MatchError(paging.ErrClosed))
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("items by id", func() {
		BeforeEach(func() {
			source = newFakeSource(20, 10)
		})

		It("should read cached items", func() {
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			item, ok, err := p.GetItem(ctx, 4)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(item).To(Equal(post{ID: 4, Title: titleOf(4)}))

			_, ok, err = p.GetItem(ctx, 999)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should treat placeholder payloads as missing", func() {
			p := newPaginator(testConfig(10, 0, 3))
			err := st.InTx(ctx, func(tx store.Tx) error {
				return tx.UpsertItem(ctx, store.CachedItem{ID: 5, Payload: "{}"})
			})
			Expect(err).ToNot(HaveOccurred())

			_, ok, err := p.GetItem(ctx, 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should project updated items", func() {
			stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			p := newPaginator(testConfig(10, 0, 3), paging.WithClock(func() time.Time { return stamp }))
			p.Reset(0)
			Eventually(p.State).Should(Equal(paging.StateIdle))

			Expect(p.UpdateItem(ctx, 4, post{ID: 4, Title: "edited"})).To(Succeed())

			Eventually(func() string { return p.Items()[4].Title }).Should(Equal("edited"))

			cached, err := st.Item(ctx, 4)
			Expect(err).ToNot(HaveOccurred())
			Expect(cached.UpdatedAt).To(Equal(stamp))
		})
	})

	Describe("Window", func() {
		BeforeEach(func() {
			source = newFakeSource(25, 10)
		})

		It("should expose loaded slots and placeholders", func() {
			p := newPaginator(testConfig(10, 0, 3))
			p.Reset(0)
			Eventually(items(p)).Should(HaveLen(10))

			w := p.Window(5, 15)

			Expect(w.Start).To(Equal(5))
			Expect(w.TotalCount).To(Equal(25))
			Expect(w.Slots).To(HaveLen(10))
			Expect(w.LoadedCount()).To(Equal(5))
		})
	})
})
