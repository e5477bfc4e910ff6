package offlineagent

// namespacePrefix marks cache namespaces managed by this agent.
const namespacePrefix = "offline-agent-"

// VersionManager maps the application version to a cache namespace and
// decides which namespaces are stale after a version cutover.
type VersionManager struct {
	Prefix  string
	Version string
}

func NewVersionManager(version string) VersionManager {
	return VersionManager{
		Prefix:  namespacePrefix,
		Version: version,
	}
}

// CurrentNamespace returns the namespace of the current version.
func (v VersionManager) CurrentNamespace() string {
	return v.Prefix + v.Version
}

// Reconcile returns the namespaces to delete: every name that is not the
// current namespace. Deletion of individual namespaces is independent, so
// one failed delete never blocks the others.
func (v VersionManager) Reconcile(namespaces []string) []string {
	current := v.CurrentNamespace()
	stale := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if ns != current {
			stale = append(stale, ns)
		}
	}
	return stale
}
