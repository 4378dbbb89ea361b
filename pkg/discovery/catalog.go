package discovery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// DefaultConfigAPIGroup is the API group holding cluster configuration resources.
	DefaultConfigAPIGroup = "config.openshift.io"
	// DefaultOperatorStatusKind is the kind excluded from the configuration resources.
	DefaultOperatorStatusKind = "ClusterOperator"
	// DefaultOperatorAPIGroup is the API group holding operator configuration resources.
	DefaultOperatorAPIGroup = "operator.openshift.io"
)

// DefaultAdminResources returns the resource names that are classified as administrative.
func DefaultAdminResources() []string {
	return []string{
		"roles",
		"rolebindings",
		"clusterroles",
		"clusterrolebindings",
		"thirdpartyresources",
		"nodes",
		"secrets",
	}
}

// GroupVersions lists the served versions of one API group.
type GroupVersions struct {
	Versions         []string `json:"versions"`
	PreferredVersion string   `json:"preferredVersion"`
}

// Catalog is the classified snapshot produced by one discovery cycle.
// It is never modified after it has been built; consumers must treat it as read-only.
type Catalog struct {
	AllResources                   []string                 `json:"allResources"`
	SafeResources                  []string                 `json:"safeResources"`
	AdminResources                 []string                 `json:"adminResources"`
	ConfigResources                []ResourceModel          `json:"configResources"`
	ClusterOperatorConfigResources []ResourceModel          `json:"clusterOperatorConfigResources"`
	NamespacedSet                  sets.Set[string]         `json:"-"`
	Models                         []ResourceModel          `json:"models"`
	GroupVersionMap                map[string]GroupVersions `json:"groupVersionMap"`

	// DiscoveredAt is when the catalog was assembled.
	DiscoveredAt time.Time `json:"discoveredAt"`
	// FailedEndpoints lists the resource list paths that could not be fetched.
	FailedEndpoints []string `json:"failedEndpoints,omitempty"`
}

// catalogAlias has no methods, which keeps MarshalJSON and cmp from recursing into Catalog's own.
type catalogAlias Catalog

type catalogJSON struct {
	*catalogAlias
	Namespaced []string `json:"namespacedSet"`
}

// MarshalJSON encodes the namespaced set as a sorted list.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(catalogJSON{
		catalogAlias: (*catalogAlias)(c),
		Namespaced:   sets.List(c.NamespacedSet),
	})
}

// UnmarshalJSON decodes a catalog written by MarshalJSON.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	aux := catalogJSON{catalogAlias: (*catalogAlias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.NamespacedSet = sets.New(aux.Namespaced...)
	return nil
}

// IsNamespaced reports whether the resource name was seen as namespaced in any group.
func (c *Catalog) IsNamespaced(resource string) bool {
	return c.NamespacedSet.Has(resource)
}

// IsAdmin reports whether the resource name is classified as administrative.
func (c *Catalog) IsAdmin(resource string) bool {
	i := sort.SearchStrings(c.AdminResources, resource)
	return i < len(c.AdminResources) && c.AdminResources[i] == resource
}

// ModelsForGroup returns the models discovered in the given API group.
func (c *Catalog) ModelsForGroup(group string) []ResourceModel {
	var out []ResourceModel
	for _, m := range c.Models {
		if m.APIGroup == group {
			out = append(out, m)
		}
	}
	return out
}

// Equal compares the discovered content of two catalogs, ignoring DiscoveredAt and FailedEndpoints.
func (c *Catalog) Equal(other *Catalog) bool {
	if c == nil || other == nil {
		return c == other
	}
	return cmp.Equal((*catalogAlias)(c), (*catalogAlias)(other),
		cmpopts.IgnoreFields(catalogAlias{}, "DiscoveredAt", "FailedEndpoints"),
		cmpopts.EquateEmpty(),
	)
}

// Validate checks that the safe and admin resources partition AllResources exactly.
func (c *Catalog) Validate() error {
	all := sets.New(c.AllResources...)
	if all.Len() != len(c.AllResources) {
		return fmt.Errorf("allResources contains duplicates")
	}
	safe := sets.New(c.SafeResources...)
	admin := sets.New(c.AdminResources...)
	if safe.Len() != len(c.SafeResources) || admin.Len() != len(c.AdminResources) {
		return fmt.Errorf("classification contains duplicates")
	}
	if overlap := safe.Intersection(admin); overlap.Len() > 0 {
		return fmt.Errorf("resources classified as both safe and admin: %v", sets.List(overlap))
	}
	if union := safe.Union(admin); !union.Equal(all) {
		return fmt.Errorf("classification does not cover allResources: missing %v, unknown %v",
			sets.List(all.Difference(union)), sets.List(union.Difference(all)))
	}
	return nil
}

// Classifier holds the fixed rules used to classify discovered resources.
type Classifier struct {
	// AdminResources are resource names routed to Catalog.AdminResources.
	AdminResources sets.Set[string]
	// ConfigAPIGroup selects Catalog.ConfigResources.
	ConfigAPIGroup string
	// OperatorStatusKind is excluded from Catalog.ConfigResources.
	OperatorStatusKind string
	// OperatorAPIGroup selects Catalog.ClusterOperatorConfigResources.
	OperatorAPIGroup string
}

// DefaultClassifier returns the classifier with the built-in rules.
func DefaultClassifier() Classifier {
	return Classifier{
		AdminResources:     sets.New(DefaultAdminResources()...),
		ConfigAPIGroup:     DefaultConfigAPIGroup,
		OperatorStatusKind: DefaultOperatorStatusKind,
		OperatorAPIGroup:   DefaultOperatorAPIGroup,
	}
}

// Partition splits resources into safe and admin names, preserving input order.
// Subresource names are classified by their parent resource.
func (cl Classifier) Partition(resources []string) (safe, admin []string) {
	safe = make([]string, 0, len(resources))
	admin = make([]string, 0)
	for _, r := range resources {
		parent, _, _ := strings.Cut(r, "/")
		if cl.AdminResources.Has(parent) {
			admin = append(admin, r)
		} else {
			safe = append(safe, r)
		}
	}
	return safe, admin
}

// BuildCatalog aggregates the fetched resource lists into a catalog.
// Nil lists are skipped.
func BuildCatalog(
	lists []*metav1.APIResourceList,
	groupVersionMap map[string]GroupVersions,
	classifier Classifier,
	abbr AbbrFunc,
) *Catalog {
	resourceSet := sets.New[string]()
	namespacedSet := sets.New[string]()
	models := make([]ResourceModel, 0)

	for _, list := range lists {
		if list == nil {
			continue
		}
		for _, res := range list.APIResources {
			resourceSet.Insert(res.Name)
			if res.Namespaced {
				namespacedSet.Insert(res.Name)
			}
		}
		models = append(models, DefineModels(list, abbr)...)
	}

	allResources := sets.List(resourceSet)
	safe, admin := classifier.Partition(allResources)

	configResources := make([]ResourceModel, 0)
	operatorResources := make([]ResourceModel, 0)
	for _, m := range models {
		if m.APIGroup == classifier.ConfigAPIGroup && m.Kind != classifier.OperatorStatusKind {
			configResources = append(configResources, m)
		}
		if m.APIGroup == classifier.OperatorAPIGroup {
			operatorResources = append(operatorResources, m)
		}
	}

	if groupVersionMap == nil {
		groupVersionMap = map[string]GroupVersions{}
	}

	return &Catalog{
		AllResources:                   allResources,
		SafeResources:                  safe,
		AdminResources:                 admin,
		ConfigResources:                configResources,
		ClusterOperatorConfigResources: operatorResources,
		NamespacedSet:                  namespacedSet,
		Models:                         models,
		GroupVersionMap:                groupVersionMap,
	}
}

// GroupVersionMapFrom builds the group to versions mapping from a group list.
func GroupVersionMapFrom(groups *metav1.APIGroupList) map[string]GroupVersions {
	out := make(map[string]GroupVersions, len(groups.Groups))
	for _, g := range groups.Groups {
		versions := make([]string, 0, len(g.Versions))
		for _, v := range g.Versions {
			versions = append(versions, v.Version)
		}
		out[g.Name] = GroupVersions{
			Versions:         versions,
			PreferredVersion: g.PreferredVersion.Version,
		}
	}
	return out
}
