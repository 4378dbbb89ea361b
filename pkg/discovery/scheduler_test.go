/*
Copyright © 2026 Deutsche Telekom AG
*/

package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	clocktesting "k8s.io/utils/clock/testing"
)

type sourceFunc func(ctx context.Context) (*Catalog, error)

func (f sourceFunc) Discover(ctx context.Context) (*Catalog, error) {
	return f(ctx)
}

// recordingPublisher records notifications as "started" and "received:<first resource>".
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) OnDiscoveryStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "started")
}

func (p *recordingPublisher) OnCatalogReceived(catalog *Catalog) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "received:"+catalog.AllResources[0])
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type stubCache struct {
	mu     sync.Mutex
	stored *Catalog
	saves  int
}

func (c *stubCache) Load(context.Context) (*Catalog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored, c.stored != nil
}

func (c *stubCache) Save(_ context.Context, catalog *Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = catalog
	c.saves++
}

func (c *stubCache) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func namedCatalog(name string) *Catalog {
	return &Catalog{AllResources: []string{name}, SafeResources: []string{name}}
}

var _ = Describe("Scheduler", func() {
	var (
		ctx       context.Context
		fakeClock *clocktesting.FakeClock
		publisher *recordingPublisher
		cache     *stubCache
		calls     atomic.Int32
		failing   atomic.Bool
		source    sourceFunc
		scheduler *Scheduler
	)

	BeforeEach(func() {
		ctx = context.Background()
		fakeClock = clocktesting.NewFakeClock(time.Now())
		publisher = &recordingPublisher{}
		cache = &stubCache{}
		calls.Store(0)
		failing.Store(false)
		source = func(context.Context) (*Catalog, error) {
			calls.Add(1)
			if failing.Load() {
				return nil, &GroupEnumerationError{Path: GroupListPath, Err: errUnavailable}
			}
			return namedCatalog("live"), nil
		}
		scheduler = NewScheduler(source, cache, publisher, SchedulerOptions{Clock: fakeClock})
	})

	AfterEach(func() {
		scheduler.Stop()
	})

	// waitForTimer waits until the scheduler has armed its next timer.
	waitForTimer := func() {
		Eventually(fakeClock.Waiters).WithTimeout(2 * time.Second).Should(Equal(1))
	}

	// waitForIdle waits until no cycle holds the cycle lock.
	waitForIdle := func() {
		Eventually(func() bool {
			if !scheduler.cycleMu.TryLock() {
				return false
			}
			scheduler.cycleMu.Unlock()
			return true
		}).Should(BeTrue())
	}

	It("should wait for the initial delay before doing anything", func() {
		Expect(scheduler.State()).To(Equal(StateIdle))
		Expect(scheduler.Init(ctx)).To(Succeed())
		Expect(scheduler.State()).To(Equal(StateAwaitingInitialDelay))
		Expect(fakeClock.Waiters()).To(Equal(1))

		fakeClock.Step(DefaultInitialDelay - time.Second)
		Consistently(calls.Load).WithTimeout(50 * time.Millisecond).Should(BeZero())
		Expect(publisher.Events()).To(BeEmpty())

		fakeClock.Step(time.Second)
		Eventually(calls.Load).Should(BeEquivalentTo(1))
		waitForTimer()
		Expect(scheduler.State()).To(Equal(StatePolling))
	})

	It("should keep a single timer when Init is called repeatedly", func() {
		Expect(scheduler.Init(ctx)).To(Succeed())
		Expect(scheduler.Init(ctx)).To(Succeed())
		Expect(scheduler.Init(ctx)).To(Succeed())
		Expect(fakeClock.Waiters()).To(Equal(1))

		fakeClock.Step(DefaultInitialDelay)
		waitForTimer()
		Consistently(calls.Load).WithTimeout(100 * time.Millisecond).Should(BeEquivalentTo(1))

		fakeClock.Step(DefaultPollInterval)
		Eventually(calls.Load).Should(BeEquivalentTo(2))
		waitForTimer()
		Consistently(calls.Load).WithTimeout(100 * time.Millisecond).Should(BeEquivalentTo(2))
	})

	It("should publish the cached catalog before the first live cycle", func() {
		cache.stored = namedCatalog("cached")

		Expect(scheduler.Init(ctx)).To(Succeed())
		fakeClock.Step(DefaultInitialDelay)
		waitForTimer()

		Eventually(publisher.Events).Should(Equal([]string{"received:cached", "started", "received:live"}))
		Expect(cache.Saves()).To(Equal(1))
		Expect(cache.stored.AllResources).To(Equal([]string{"live"}))
	})

	It("should start polling when the cache is empty", func() {
		Expect(scheduler.Init(ctx)).To(Succeed())
		fakeClock.Step(DefaultInitialDelay)
		waitForTimer()

		Eventually(publisher.Events).Should(Equal([]string{"started", "received:live"}))
	})

	It("should poll at the configured interval", func() {
		scheduler = NewScheduler(source, cache, publisher, SchedulerOptions{
			Clock:        fakeClock,
			InitialDelay: time.Second,
			PollInterval: 10 * time.Second,
		})

		Expect(scheduler.Init(ctx)).To(Succeed())
		fakeClock.Step(time.Second)
		waitForTimer()

		for i := 2; i <= 4; i++ {
			fakeClock.Step(10 * time.Second)
			Eventually(calls.Load).Should(BeEquivalentTo(i))
			waitForTimer()
		}
		Expect(cache.Saves()).To(Equal(4))
	})

	It("should keep polling after a failed cycle without publishing", func() {
		failing.Store(true)

		Expect(scheduler.Init(ctx)).To(Succeed())
		fakeClock.Step(DefaultInitialDelay)
		waitForTimer()
		Expect(publisher.Events()).To(Equal([]string{"started"}))
		Expect(cache.Saves()).To(BeZero())

		fakeClock.Step(DefaultPollInterval)
		Eventually(calls.Load).Should(BeEquivalentTo(2))
		waitForTimer()

		failing.Store(false)
		fakeClock.Step(DefaultPollInterval)
		Eventually(publisher.Events).Should(Equal([]string{"started", "started", "started", "received:live"}))
		waitForTimer()
	})

	It("should stop rescheduling once stopped", func() {
		Expect(scheduler.Init(ctx)).To(Succeed())
		fakeClock.Step(DefaultInitialDelay)
		waitForTimer()

		scheduler.Stop()
		Expect(fakeClock.Waiters()).To(BeZero())
		Expect(scheduler.State()).To(Equal(StateStopped))

		fakeClock.Step(DefaultPollInterval)
		Consistently(calls.Load).WithTimeout(50 * time.Millisecond).Should(BeEquivalentTo(1))

		Expect(scheduler.Init(ctx)).To(MatchError(ErrSchedulerStopped))
		Expect(scheduler.Refresh(ctx)).To(MatchError(ErrSchedulerStopped))
	})

	It("should run as a manager runnable until the context is done", func() {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- scheduler.Start(runCtx)
		}()

		Eventually(scheduler.State).Should(Equal(StateAwaitingInitialDelay))
		Expect(scheduler.NeedLeaderElection()).To(BeFalse())

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		Expect(scheduler.State()).To(Equal(StateStopped))
		Expect(fakeClock.Waiters()).To(BeZero())
	})

	Describe("with a cycle in flight", func() {
		var (
			started chan struct{}
			release chan struct{}
		)

		BeforeEach(func() {
			started = make(chan struct{}, 1)
			release = make(chan struct{})
			// the first cycle blocks until release is closed
			gated := sourceFunc(func(ctx context.Context) (*Catalog, error) {
				if calls.Add(1) == 1 {
					started <- struct{}{}
					<-release
				}
				return namedCatalog("live"), nil
			})
			scheduler = NewScheduler(gated, cache, publisher, SchedulerOptions{Clock: fakeClock})
		})

		AfterEach(func() {
			select {
			case <-release:
			default:
				close(release)
			}
		})

		It("should keep the initial delay of an Init issued during the cycle", func() {
			Expect(scheduler.Init(ctx)).To(Succeed())
			fakeClock.Step(DefaultInitialDelay)
			Eventually(started).Should(Receive())

			Expect(scheduler.Init(ctx)).To(Succeed())
			Expect(scheduler.State()).To(Equal(StateAwaitingInitialDelay))
			Expect(fakeClock.Waiters()).To(Equal(1))

			close(release)
			Eventually(cache.Saves).Should(Equal(1))
			Consistently(fakeClock.Waiters).WithTimeout(100 * time.Millisecond).Should(Equal(1))
			Expect(scheduler.State()).To(Equal(StateAwaitingInitialDelay))
			Expect(scheduler.Refresh(ctx)).To(MatchError(ErrRefreshSkipped))

			fakeClock.Step(DefaultInitialDelay)
			Eventually(calls.Load).Should(BeEquivalentTo(2))
			waitForTimer()
			Expect(scheduler.State()).To(Equal(StatePolling))

			waitForIdle()
			Expect(scheduler.Refresh(ctx)).To(Succeed())
			Expect(calls.Load()).To(BeEquivalentTo(3))
			Expect(fakeClock.Waiters()).To(Equal(1))
		})

		It("should return from Start only after the running cycle finished", func() {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() {
				done <- scheduler.Start(runCtx)
			}()

			Eventually(scheduler.State).Should(Equal(StateAwaitingInitialDelay))
			fakeClock.Step(DefaultInitialDelay)
			Eventually(started).Should(Receive())

			cancel()
			Consistently(done).WithTimeout(100 * time.Millisecond).ShouldNot(Receive())

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(cache.Saves()).To(Equal(1))
			Expect(fakeClock.Waiters()).To(BeZero())
		})
	})

	Describe("Refresh", func() {
		It("should be skipped before polling has started", func() {
			Expect(scheduler.Init(ctx)).To(Succeed())
			Expect(scheduler.Refresh(ctx)).To(MatchError(ErrRefreshSkipped))
			Expect(calls.Load()).To(BeZero())
		})

		It("should run a cycle and restart the poll interval", func() {
			Expect(scheduler.Init(ctx)).To(Succeed())
			fakeClock.Step(DefaultInitialDelay)
			waitForTimer()

			fakeClock.Step(DefaultPollInterval / 2)
			waitForIdle()
			Expect(scheduler.Refresh(ctx)).To(Succeed())
			Expect(calls.Load()).To(BeEquivalentTo(2))
			Expect(fakeClock.Waiters()).To(Equal(1))

			// the old deadline no longer fires
			fakeClock.Step(DefaultPollInterval / 2)
			Consistently(calls.Load).WithTimeout(50 * time.Millisecond).Should(BeEquivalentTo(2))

			fakeClock.Step(DefaultPollInterval / 2)
			Eventually(calls.Load).Should(BeEquivalentTo(3))
		})

		It("should be rate limited", func() {
			Expect(scheduler.Init(ctx)).To(Succeed())
			fakeClock.Step(DefaultInitialDelay)
			waitForTimer()

			waitForIdle()
			Expect(scheduler.Refresh(ctx)).To(Succeed())
			Expect(errors.Is(scheduler.Refresh(ctx), ErrRefreshSkipped)).To(BeTrue())
			Expect(calls.Load()).To(BeEquivalentTo(2))
		})
	})

	Describe("SchedulerState", func() {
		It("should have readable names", func() {
			Expect(StatePolling.String()).To(Equal("Polling"))
			Expect(SchedulerState(42).String()).To(Equal("Unknown"))
		})
	})
})
