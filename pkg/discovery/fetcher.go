package discovery

import (
	"context"
	"path"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/telekom/api-catalog/pkg/metrics"
	"github.com/telekom/api-catalog/pkg/tracing"
)

// DefaultBatchSize is the number of resource list endpoints fetched concurrently.
const DefaultBatchSize = 5

// CatalogSource produces a fresh catalog on every call.
type CatalogSource interface {
	Discover(ctx context.Context) (*Catalog, error)
}

// FetcherOptions configures a Fetcher. Zero values select the defaults.
type FetcherOptions struct {
	// BatchSize bounds the number of in-flight resource list requests.
	BatchSize int
	// Classifier holds the classification rules. A zero value selects DefaultClassifier.
	Classifier *Classifier
	// Abbr derives model abbreviations. Defaults to KindToAbbr.
	Abbr AbbrFunc
	// Clock stamps catalogs and measures durations. Defaults to the real clock.
	Clock clock.PassiveClock
}

// Fetcher runs discovery cycles against a Transport.
type Fetcher struct {
	transport  Transport
	batchSize  int
	classifier Classifier
	abbr       AbbrFunc
	clock      clock.PassiveClock
}

// endpointResult is the settled outcome of one resource list fetch.
// Exactly one of list and err is set.
type endpointResult struct {
	path string
	list *metav1.APIResourceList
	err  error
}

// NewFetcher creates a Fetcher.
func NewFetcher(transport Transport, opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		transport:  transport,
		batchSize:  opts.BatchSize,
		classifier: DefaultClassifier(),
		abbr:       opts.Abbr,
		clock:      opts.Clock,
	}
	if f.batchSize <= 0 {
		f.batchSize = DefaultBatchSize
	}
	if opts.Classifier != nil {
		f.classifier = *opts.Classifier
	}
	if f.abbr == nil {
		f.abbr = KindToAbbr
	}
	if f.clock == nil {
		f.clock = clock.RealClock{}
	}
	return f
}

// Discover runs one discovery cycle.
// It only fails when the API group list cannot be fetched or ctx is canceled; resource list
// endpoints that fail are left out of the catalog and listed in Catalog.FailedEndpoints.
func (f *Fetcher) Discover(ctx context.Context) (*Catalog, error) {
	startTime := f.clock.Now()
	logger := log.FromContext(ctx).WithName("Fetcher")

	ctx, span := tracing.Tracer().Start(ctx, "discovery.Discover")
	defer span.End()

	groups := &metav1.APIGroupList{}
	if err := f.transport.FetchJSON(ctx, GroupListPath, groups); err != nil {
		metrics.GroupEnumerationErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "group enumeration failed")
		return nil, &GroupEnumerationError{Path: GroupListPath, Err: err}
	}
	logger.V(2).Info("discovered API groups", "groupCount", len(groups.Groups))

	endpoints := ResourceListPaths(groups)
	span.SetAttributes(tracing.AttrEndpointCount.Int(len(endpoints)))

	results, err := f.fetchInBatches(ctx, endpoints)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery canceled")
		return nil, err
	}

	lists := make([]*metav1.APIResourceList, 0, len(results))
	failed := make([]string, 0)
	for _, r := range results {
		if r.err != nil {
			metrics.EndpointFetchErrors.Inc()
			logger.V(1).Info("skipping API resource list that could not be fetched", "path", r.path, "error", r.err.Error())
			failed = append(failed, r.path)
			continue
		}
		lists = append(lists, r.list)
	}

	catalog := BuildCatalog(lists, GroupVersionMapFrom(groups), f.classifier, f.abbr)
	catalog.DiscoveredAt = f.clock.Now()
	if len(failed) > 0 {
		catalog.FailedEndpoints = failed
	}

	span.SetAttributes(
		tracing.AttrFailedEndpoints.Int(len(failed)),
		tracing.AttrResourceCount.Int(len(catalog.AllResources)),
		tracing.AttrModelCount.Int(len(catalog.Models)),
	)
	metrics.DiscoveryDuration.Observe(f.clock.Since(startTime).Seconds())
	logger.V(1).Info("discovered API resources",
		"endpointCount", len(endpoints),
		"failedEndpointCount", len(failed),
		"resourceCount", len(catalog.AllResources),
		"modelCount", len(catalog.Models))
	return catalog, nil
}

// fetchInBatches fetches all paths in consecutive batches of at most f.batchSize.
// A batch starts only after every fetch of the previous batch has settled.
func (f *Fetcher) fetchInBatches(ctx context.Context, paths []string) ([]endpointResult, error) {
	results := make([]endpointResult, len(paths))
	for batch, start := 0, 0; start < len(paths); batch, start = batch+1, start+f.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+f.batchSize, len(paths))
		f.fetchBatch(ctx, batch, paths[start:end], results[start:end])
	}
	return results, nil
}

// fetchBatch fetches all paths concurrently and writes each outcome into the matching slot.
func (f *Fetcher) fetchBatch(ctx context.Context, batch int, paths []string, results []endpointResult) {
	ctx, span := tracing.Tracer().Start(ctx, "discovery.fetchBatch", trace.WithAttributes(
		tracing.AttrBatchIndex.Int(batch),
		tracing.AttrBatchSize.Int(len(paths)),
	))
	defer span.End()
	batchStart := f.clock.Now()

	// A plain Group: one failing endpoint must not cancel its siblings.
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			list := &metav1.APIResourceList{}
			if err := f.transport.FetchJSON(ctx, p, list); err != nil {
				results[i] = endpointResult{path: p, err: &EndpointFetchError{Path: p, Err: err}}
				return nil
			}
			results[i] = endpointResult{path: p, list: list}
			return nil
		})
	}
	_ = g.Wait()

	metrics.BatchDuration.Observe(f.clock.Since(batchStart).Seconds())
}

// ResourceListPaths returns the resource list endpoint of every served group version,
// followed by the legacy core endpoint.
func ResourceListPaths(groups *metav1.APIGroupList) []string {
	paths := make([]string, 0)
	for _, group := range groups.Groups {
		for _, version := range group.Versions {
			gv := version.GroupVersion
			if gv == "" {
				gv = path.Join(group.Name, version.Version)
			}
			paths = append(paths, path.Join(GroupListPath, gv))
		}
	}
	return append(paths, LegacyCoreResourcesPath)
}

// discoverWithTimeout bounds a cycle when timeout is positive.
func discoverWithTimeout(ctx context.Context, source CatalogSource, timeout time.Duration) (*Catalog, error) {
	if timeout <= 0 {
		return source.Discover(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return source.Discover(ctx)
}
