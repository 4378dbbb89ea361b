package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
)

const (
	// GroupListPath lists the named API groups.
	GroupListPath = "/apis"
	// LegacyCoreResourcesPath lists the resources of the legacy core group.
	LegacyCoreResourcesPath = "/api/v1"

	// Discovery fans out to many endpoints; a higher QPS and Burst than the client-go defaults
	// keeps a batch from being throttled client side.
	discoveryQPS   = 100
	discoveryBurst = 200
)

// Transport fetches a JSON document from the API server and decodes it into out.
type Transport interface {
	FetchJSON(ctx context.Context, path string, out any) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, path string, out any) error

// FetchJSON calls f.
func (f TransportFunc) FetchJSON(ctx context.Context, path string, out any) error {
	return f(ctx, path, out)
}

// RESTTransport fetches discovery documents through a client-go REST client.
type RESTTransport struct {
	client rest.Interface
}

// NewRESTTransport wraps an existing REST client.
func NewRESTTransport(client rest.Interface) *RESTTransport {
	return &RESTTransport{client: client}
}

// NewRESTTransportForConfig creates a transport backed by a discovery REST client for config.
func NewRESTTransportForConfig(config *rest.Config) (*RESTTransport, error) {
	discoveryConfig := rest.CopyConfig(config)
	discoveryConfig.QPS = discoveryQPS
	discoveryConfig.Burst = discoveryBurst

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(discoveryConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create discovery client: %w", err)
	}
	return NewRESTTransport(discoveryClient.RESTClient()), nil
}

// FetchJSON issues a GET for the absolute path and decodes the JSON body.
func (t *RESTTransport) FetchJSON(ctx context.Context, path string, out any) error {
	body, err := t.client.Get().AbsPath(path).SetHeader("Accept", "application/json").Do(ctx).Raw()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unable to decode response from %s: %w", path, err)
	}
	return nil
}
