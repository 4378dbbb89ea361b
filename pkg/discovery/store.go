package discovery

import (
	"errors"
	"net/http"
	"sync"

	"github.com/telekom/api-catalog/pkg/metrics"
)

// ErrCatalogNotReady is returned by the readiness check until a catalog has been published.
var ErrCatalogNotReady = errors.New("no API catalog published yet")

// Publisher receives the notifications of the discovery scheduler.
type Publisher interface {
	// OnDiscoveryStarted is called before every discovery cycle.
	OnDiscoveryStarted()
	// OnCatalogReceived is called with every catalog that becomes current,
	// including a catalog loaded from the cache at bootstrap.
	OnCatalogReceived(catalog *Catalog)
}

// CatalogStore is the application-wide holder of the current catalog.
// It is safe for concurrent use.
type CatalogStore struct {
	mu          sync.RWMutex
	catalog     *Catalog
	inFlight    bool
	generation  int64
	subscribers []func(*Catalog)
}

var _ Publisher = &CatalogStore{}

// NewCatalogStore creates an empty store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{}
}

// Subscribe registers fn to be called with every catalog the store receives.
// Subscribers run synchronously on the publishing goroutine and must not block.
func (s *CatalogStore) Subscribe(fn func(*Catalog)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// OnDiscoveryStarted marks a discovery cycle as in flight.
func (s *CatalogStore) OnDiscoveryStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = true
}

// OnCatalogReceived replaces the current catalog and notifies subscribers.
func (s *CatalogStore) OnCatalogReceived(catalog *Catalog) {
	if catalog == nil {
		return
	}

	s.mu.Lock()
	s.catalog = catalog
	s.inFlight = false
	s.generation++
	subscribers := append([]func(*Catalog){}, s.subscribers...)
	s.mu.Unlock()

	recordCatalogMetrics(catalog)
	for _, fn := range subscribers {
		fn(catalog)
	}
}

// Catalog returns the current catalog, if any.
func (s *CatalogStore) Catalog() (*Catalog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, s.catalog != nil
}

// InFlight reports whether a cycle started after the last received catalog.
// A failed cycle leaves the flag set until the next catalog arrives.
func (s *CatalogStore) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// Generation returns the number of catalogs received so far.
func (s *CatalogStore) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ReadyCheck is a healthz.Checker that fails until a catalog has been published.
func (s *CatalogStore) ReadyCheck(_ *http.Request) error {
	if _, ok := s.Catalog(); !ok {
		return ErrCatalogNotReady
	}
	return nil
}

func recordCatalogMetrics(catalog *Catalog) {
	metrics.CatalogResources.WithLabelValues(metrics.ClassAll).Set(float64(len(catalog.AllResources)))
	metrics.CatalogResources.WithLabelValues(metrics.ClassSafe).Set(float64(len(catalog.SafeResources)))
	metrics.CatalogResources.WithLabelValues(metrics.ClassAdmin).Set(float64(len(catalog.AdminResources)))
	metrics.CatalogResources.WithLabelValues(metrics.ClassNamespaced).Set(float64(catalog.NamespacedSet.Len()))
	metrics.CatalogResources.WithLabelValues(metrics.ClassModels).Set(float64(len(catalog.Models)))
	if !catalog.DiscoveredAt.IsZero() {
		metrics.LastPublishedTimestamp.Set(float64(catalog.DiscoveredAt.Unix()))
	}
}
