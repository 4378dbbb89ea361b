package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/rest"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// watchResetAfter is how long a CRD watch must stay up before its reconnect backoff starts over.
const watchResetAfter = 5 * time.Minute

// Refresher runs an out-of-band discovery cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CRDWatcher triggers a catalog refresh whenever a CustomResourceDefinition is added, changed or removed.
// Refreshes are rate limited by the Refresher; the regular poll loop picks up anything that was skipped.
type CRDWatcher struct {
	refresher Refresher
	newClient func() (client.WithWatch, error)
	clock     clock.Clock

	mu    sync.RWMutex
	known map[string]struct{}
}

// NewCRDWatcher creates a watcher that talks to the API server described by config.
func NewCRDWatcher(config *rest.Config, refresher Refresher) (*CRDWatcher, error) {
	scheme := runtime.NewScheme()
	if err := apiextensionsv1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("unable to register apiextensions types: %w", err)
	}
	return NewCRDWatcherWithClient(func() (client.WithWatch, error) {
		return client.NewWithWatch(config, client.Options{Scheme: scheme})
	}, refresher), nil
}

// NewCRDWatcherWithClient creates a watcher using newClient to open connections.
func NewCRDWatcherWithClient(newClient func() (client.WithWatch, error), refresher Refresher) *CRDWatcher {
	return &CRDWatcher{
		refresher: refresher,
		newClient: newClient,
		clock:     clock.RealClock{},
		known:     make(map[string]struct{}),
	}
}

// NeedLeaderElection implements LeaderElectionRunnable.
func (w *CRDWatcher) NeedLeaderElection() bool {
	return false
}

// Start implements manager.Runnable. It keeps the watch running until ctx is done.
func (w *CRDWatcher) Start(ctx context.Context) error {
	if err := w.initKnownCRDs(ctx); err != nil {
		return fmt.Errorf("unable to initialize known CRDs: %w", err)
	}

	if err := RetryForever(ctx, w.clock, NewWatchBackoff(), watchResetAfter, w.watch); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return pkgerrors.Wrap(err, "CRD watch stopped")
	}
	return nil
}

// initKnownCRDs records the existing CRDs, so the ADDED events a new watch replays for them
// do not trigger a refresh.
func (w *CRDWatcher) initKnownCRDs(ctx context.Context) error {
	cli, err := w.newClient()
	if err != nil {
		return fmt.Errorf("unable to create client for CRD list: %w", err)
	}

	var crdList apiextensionsv1.CustomResourceDefinitionList
	if err := cli.List(ctx, &crdList); err != nil {
		return fmt.Errorf("unable to list CRDs: %w", err)
	}

	known := make(map[string]struct{}, len(crdList.Items))
	for _, crd := range crdList.Items {
		known[string(crd.UID)] = struct{}{}
	}

	w.mu.Lock()
	w.known = known
	w.mu.Unlock()

	log.FromContext(ctx).WithName("CRDWatcher").V(1).Info("initialized known CRDs", "crdCount", len(known))
	return nil
}

func (w *CRDWatcher) watch(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("CRDWatcher")

	cli, err := w.newClient()
	if err != nil {
		logger.Error(err, "unable to create client for CRD watch")
		return
	}

	var crdList apiextensionsv1.CustomResourceDefinitionList
	watcher, err := cli.Watch(ctx, &crdList)
	if err != nil {
		logger.Error(err, "unable to start CRD watch")
		return
	}
	defer watcher.Stop()

	logger.Info("starting CRD watch")
	for {
		select {
		case event, ok := <-watcher.ResultChan():
			if !ok {
				logger.Info("CRD watch channel closed")
				return
			}
			if event.Type == watch.Error {
				if status, isStatus := event.Object.(*metav1.Status); isStatus {
					logger.Info("CRD watch error event received", "message", status.Message, "reason", status.Reason, "code", status.Code)
				} else {
					logger.Info("CRD watch error event received", "eventObject", event.Object)
				}
				return
			}
			if !w.shouldRefresh(event) {
				continue
			}

			err := w.refresher.Refresh(ctx)
			switch {
			case err == nil:
				logger.V(1).Info("refreshed API catalog after CRD change", "eventType", event.Type)
			case errors.Is(err, ErrRefreshSkipped):
				logger.V(2).Info("CRD change refresh skipped", "eventType", event.Type)
			case errors.Is(err, ErrSchedulerStopped):
				return
			default:
				logger.Error(err, "failed to refresh API catalog after CRD change")
			}

		case <-ctx.Done():
			logger.Info("stopping CRD watch after context done")
			return
		}
	}
}

// shouldRefresh reports whether a watch event may have changed the served API resources.
// ADDED events for already known CRDs and updates of terminating CRDs are ignored; a terminating
// CRD keeps serving its resources until it is finally DELETED.
func (w *CRDWatcher) shouldRefresh(event watch.Event) bool {
	crd, ok := event.Object.(*apiextensionsv1.CustomResourceDefinition)
	if !ok {
		return false
	}
	uid := string(crd.UID)

	switch event.Type {
	case watch.Added:
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, seen := w.known[uid]; seen {
			return false
		}
		w.known[uid] = struct{}{}
		return true
	case watch.Deleted:
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.known, uid)
		return true
	case watch.Modified:
		return crd.DeletionTimestamp == nil
	default:
		return false
	}
}
