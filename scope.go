package kubexport

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
)

type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeCluster
	ScopeNamespace
)

func (s Scope) String() string {
	switch s {
	case ScopeCluster:
		return "Cluster"
	case ScopeNamespace:
		return "Namespace"
	default:
		return "Unknown"
	}
}

// Kinds is the set of names a user may use to refer to resources of one scope.
type Kinds struct {
	sets.Set[string]
}

func NewKinds(names ...string) Kinds {
	return Kinds{Set: sets.New[string](names...)}
}

// KindsFromAPIResources registers the plural name, the group-qualified name, the lower-case kind and
// every short name of each resource.
func KindsFromAPIResources(resources []metav1.APIResource) Kinds {
	kinds := NewKinds()
	for _, r := range resources {
		kinds.Insert(r.Name)
		if r.Group != "" {
			kinds.Insert(r.Name + "." + r.Group)
		}
		if r.Kind != "" {
			kinds.Insert(strings.ToLower(r.Kind))
		}
		kinds.Insert(r.ShortNames...)
	}
	return kinds
}

// Classify looks a resource name up in the cluster-level kinds first, then in the namespace-level ones.
func Classify(resourceName string, clusterKinds, namespaceKinds Kinds) Scope {
	name := strings.ToLower(strings.TrimSpace(resourceName))
	switch {
	case clusterKinds.Set != nil && clusterKinds.Has(name):
		return ScopeCluster
	case namespaceKinds.Set != nil && namespaceKinds.Has(name):
		return ScopeNamespace
	default:
		return ScopeUnknown
	}
}
