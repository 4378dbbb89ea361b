// Package discovery builds and maintains a catalog of the API resource types served by a
// Kubernetes-style API server. Resource lists are fetched in bounded batches, normalized into
// display models and classified, and a scheduler keeps the published catalog fresh by polling
// with a cache-assisted bootstrap.
package discovery
