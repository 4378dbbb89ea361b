package discovery

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ResourceModel is the normalized description of one resource kind served in one API group version.
type ResourceModel struct {
	APIGroup    string   `json:"apiGroup,omitempty"`
	APIVersion  string   `json:"apiVersion"`
	Kind        string   `json:"kind"`
	Namespaced  bool     `json:"namespaced"`
	Verbs       []string `json:"verbs,omitempty"`
	ShortNames  []string `json:"shortNames,omitempty"`
	Plural      string   `json:"plural"`
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	LabelPlural string   `json:"labelPlural"`
	Abbr        string   `json:"abbr"`
	Path        string   `json:"path"`
	CRD         bool     `json:"crd"`
}

// GroupVersionKind returns the GVK the model was discovered under.
func (m ResourceModel) GroupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: m.APIGroup, Version: m.APIVersion, Kind: m.Kind}
}

// IsSubresource reports whether a discovered resource name addresses a subresource (e.g. "pods/status").
func IsSubresource(name string) bool {
	return strings.Contains(name, "/")
}

// DefineModels turns one API resource list into resource models, skipping subresources.
// A nil abbr falls back to KindToAbbr.
func DefineModels(list *metav1.APIResourceList, abbr AbbrFunc) []ResourceModel {
	if list == nil || len(list.APIResources) == 0 {
		return []ResourceModel{}
	}
	if abbr == nil {
		abbr = KindToAbbr
	}

	// An unparsable group version still yields models; the version then carries the raw value.
	gv, err := schema.ParseGroupVersion(list.GroupVersion)
	if err != nil {
		gv = schema.GroupVersion{Version: list.GroupVersion}
	}

	models := make([]ResourceModel, 0, len(list.APIResources))
	for _, res := range list.APIResources {
		if IsSubresource(res.Name) {
			continue
		}
		models = append(models, ResourceModel{
			APIGroup:    gv.Group,
			APIVersion:  gv.Version,
			Kind:        res.Kind,
			Namespaced:  res.Namespaced,
			Verbs:       dedupe(res.Verbs),
			ShortNames:  append([]string(nil), res.ShortNames...),
			Plural:      res.Name,
			ID:          res.SingularName,
			Label:       res.Kind,
			LabelPlural: PluralizeKind(res.Kind),
			Abbr:        abbr(res.Kind),
			Path:        res.Name,
			CRD:         true,
		})
	}
	return models
}

// dedupe drops repeated entries while keeping discovery order.
func dedupe(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
