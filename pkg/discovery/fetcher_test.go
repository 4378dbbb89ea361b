/*
Copyright © 2026 Deutsche Telekom AG
*/

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/rest"
)

// gatedTransport blocks every resource list fetch until the test releases it.
type gatedTransport struct {
	server   *fakeAPIServer
	started  chan string
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newGatedTransport(server *fakeAPIServer) *gatedTransport {
	return &gatedTransport{
		server:  server,
		started: make(chan string, 100),
		release: make(chan struct{}, 100),
	}
}

func (g *gatedTransport) FetchJSON(ctx context.Context, path string, out any) error {
	if path == GroupListPath {
		return g.server.FetchJSON(ctx, path, out)
	}
	n := g.inFlight.Add(1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	g.started <- path
	<-g.release
	g.inFlight.Add(-1)
	return g.server.FetchJSON(ctx, path, out)
}

func (g *gatedTransport) releaseN(n int) {
	for range n {
		g.release <- struct{}{}
	}
}

func receiveN(ch <-chan string, n int) []string {
	out := make([]string, 0, n)
	for range n {
		var path string
		Eventually(ch).WithTimeout(2 * time.Second).Should(Receive(&path))
		out = append(out, path)
	}
	return out
}

func groupNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("g%02d.example.com", i)
	}
	return names
}

var _ = Describe("Fetcher", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("ResourceListPaths", func() {
		It("should list every group version followed by the core endpoint", func() {
			groups := &metav1.APIGroupList{Groups: []metav1.APIGroup{
				{Name: "apps", Versions: []metav1.GroupVersionForDiscovery{{GroupVersion: "apps/v1", Version: "v1"}}},
				{Name: "batch", Versions: []metav1.GroupVersionForDiscovery{
					{GroupVersion: "batch/v1", Version: "v1"},
					{Version: "v1beta1"},
				}},
			}}

			Expect(ResourceListPaths(groups)).To(Equal([]string{
				"/apis/apps/v1", "/apis/batch/v1", "/apis/batch/v1beta1", "/api/v1",
			}))
		})
	})

	Describe("Discover", func() {
		It("should build a classified catalog from all endpoints", func() {
			server := newFakeAPIServer().withGroups("a.example.com", "b.example.com")
			fetcher := NewFetcher(server, FetcherOptions{})

			catalog, err := fetcher.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(catalog.AllResources).To(Equal([]string{"nodes", "pods", "pods/status", "secrets", "widgets"}))
			Expect(catalog.AdminResources).To(Equal([]string{"nodes", "secrets"}))
			Expect(catalog.SafeResources).To(Equal([]string{"pods", "pods/status", "widgets"}))
			Expect(catalog.Models).To(HaveLen(5))
			Expect(catalog.GroupVersionMap).To(HaveKey("a.example.com"))
			Expect(catalog.FailedEndpoints).To(BeEmpty())
			Expect(catalog.DiscoveredAt).NotTo(BeZero())
			Expect(catalog.Validate()).To(Succeed())
		})

		It("should fetch twelve endpoints in sequential batches of five, five and two", func() {
			server := newFakeAPIServer().withGroups(groupNames(11)...)
			transport := newGatedTransport(server)
			fetcher := NewFetcher(transport, FetcherOptions{})

			type result struct {
				catalog *Catalog
				err     error
			}
			done := make(chan result, 1)
			go func() {
				catalog, err := fetcher.Discover(ctx)
				done <- result{catalog, err}
			}()

			for _, size := range []int{5, 5, 2} {
				receiveN(transport.started, size)
				Consistently(transport.started).WithTimeout(100 * time.Millisecond).ShouldNot(Receive())
				Expect(transport.inFlight.Load()).To(BeEquivalentTo(size))
				transport.releaseN(size)
			}

			var r result
			Eventually(done).WithTimeout(2 * time.Second).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			Expect(transport.maxSeen.Load()).To(BeEquivalentTo(5))
			Expect(r.catalog.Models).To(HaveLen(11 + 3))
		})

		It("should honour a custom batch size", func() {
			server := newFakeAPIServer().withGroups(groupNames(3)...)
			transport := newGatedTransport(server)
			fetcher := NewFetcher(transport, FetcherOptions{BatchSize: 2})

			done := make(chan error, 1)
			go func() {
				_, err := fetcher.Discover(ctx)
				done <- err
			}()

			for _, size := range []int{2, 2} {
				receiveN(transport.started, size)
				Consistently(transport.started).WithTimeout(50 * time.Millisecond).ShouldNot(Receive())
				transport.releaseN(size)
			}
			Eventually(done).WithTimeout(2 * time.Second).Should(Receive(BeNil()))
		})

		It("should leave out endpoints that fail and keep the rest", func() {
			server := newFakeAPIServer().withGroups(groupNames(6)...).
				fail("/apis/g03.example.com/v1", errUnavailable)
			fetcher := NewFetcher(server, FetcherOptions{})

			catalog, err := fetcher.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(catalog.FailedEndpoints).To(Equal([]string{"/apis/g03.example.com/v1"}))
			Expect(catalog.ModelsForGroup("g03.example.com")).To(BeEmpty())
			Expect(catalog.ModelsForGroup("g04.example.com")).To(HaveLen(1))
			Expect(catalog.IsNamespaced("pods")).To(BeTrue())
			// every endpoint is still requested
			Expect(server.requested()).To(HaveLen(1 + 6 + 1))
		})

		It("should keep successful lists that have no resources", func() {
			server := newFakeAPIServer().withGroups("empty.example.com")
			server.documents["/apis/empty.example.com/v1"] = &metav1.APIResourceList{GroupVersion: "empty.example.com/v1"}
			fetcher := NewFetcher(server, FetcherOptions{})

			catalog, err := fetcher.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.FailedEndpoints).To(BeEmpty())
			Expect(catalog.ModelsForGroup("empty.example.com")).To(BeEmpty())
		})

		It("should still succeed when every resource list fails", func() {
			server := newFakeAPIServer().withGroups("a.example.com").
				fail("/apis/a.example.com/v1", errUnavailable).
				fail(LegacyCoreResourcesPath, errUnavailable)
			fetcher := NewFetcher(server, FetcherOptions{})

			catalog, err := fetcher.Discover(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.AllResources).To(BeEmpty())
			Expect(catalog.FailedEndpoints).To(HaveLen(2))
		})

		It("should fail the cycle when the group list cannot be fetched", func() {
			server := newFakeAPIServer().withGroups("a.example.com").fail(GroupListPath, errUnavailable)
			fetcher := NewFetcher(server, FetcherOptions{})

			catalog, err := fetcher.Discover(ctx)
			Expect(catalog).To(BeNil())

			var groupErr *GroupEnumerationError
			Expect(errors.As(err, &groupErr)).To(BeTrue())
			Expect(groupErr.Path).To(Equal(GroupListPath))
			Expect(errors.Is(err, errUnavailable)).To(BeTrue())
			Expect(server.requested()).To(Equal([]string{GroupListPath}))
		})

		It("should stop between batches when the context is canceled", func() {
			server := newFakeAPIServer().withGroups(groupNames(7)...)
			transport := newGatedTransport(server)
			fetcher := NewFetcher(transport, FetcherOptions{})
			cancelCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				_, err := fetcher.Discover(cancelCtx)
				done <- err
			}()

			receiveN(transport.started, 5)
			cancel()
			transport.releaseN(5)

			var err error
			Eventually(done).WithTimeout(2 * time.Second).Should(Receive(&err))
			Expect(err).To(MatchError(context.Canceled))
			Consistently(transport.started).WithTimeout(50 * time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("RESTTransport", func() {
		var server *httptest.Server

		BeforeEach(func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/apis", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"kind":"APIGroupList","apiVersion":"v1","groups":[` +
					`{"name":"apps","versions":[{"groupVersion":"apps/v1","version":"v1"}],` +
					`"preferredVersion":{"groupVersion":"apps/v1","version":"v1"}}]}`))
			})
			mux.HandleFunc("/apis/apps/v1", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"kind":"APIResourceList","apiVersion":"v1","groupVersion":"apps/v1","resources":[` +
					`{"name":"deployments","singularName":"deployment","namespaced":true,"kind":"Deployment","verbs":["get","list"],"shortNames":["deploy"]},` +
					`{"name":"deployments/scale","singularName":"","namespaced":true,"kind":"Scale","verbs":["get"]}]}`))
			})
			mux.HandleFunc("/api/v1", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
			})
			server = httptest.NewServer(mux)
		})

		AfterEach(func() {
			server.Close()
		})

		It("should discover through a REST client and tolerate a failing endpoint", func() {
			transport, err := NewRESTTransportForConfig(&rest.Config{Host: server.URL})
			Expect(err).NotTo(HaveOccurred())

			catalog, err := NewFetcher(transport, FetcherOptions{}).Discover(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(catalog.AllResources).To(Equal([]string{"deployments", "deployments/scale"}))
			Expect(catalog.Models).To(HaveLen(1))
			Expect(catalog.Models[0].ShortNames).To(Equal([]string{"deploy"}))
			Expect(catalog.Models[0].LabelPlural).To(Equal("Deployments"))
			Expect(catalog.FailedEndpoints).To(Equal([]string{LegacyCoreResourcesPath}))
			Expect(catalog.GroupVersionMap["apps"].PreferredVersion).To(Equal("v1"))
		})

		It("should report a failing group list as fatal", func() {
			transport, err := NewRESTTransportForConfig(&rest.Config{Host: server.URL + "/missing"})
			Expect(err).NotTo(HaveOccurred())

			_, err = NewFetcher(transport, FetcherOptions{}).Discover(ctx)
			var groupErr *GroupEnumerationError
			Expect(errors.As(err, &groupErr)).To(BeTrue())
		})
	})
})
