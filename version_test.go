package offlineagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentNamespace(t *testing.T) {
	v := NewVersionManager("1.4.0")
	assert.Equal(t, "offline-agent-1.4.0", v.CurrentNamespace())
}

func TestReconcileReturnsAllButCurrent(t *testing.T) {
	v := NewVersionManager("2.0.0")
	stale := v.Reconcile([]string{
		"offline-agent-1.0.0",
		"offline-agent-2.0.0",
		"offline-agent-1.5.0",
		"some-other-cache",
	})
	assert.ElementsMatch(t, []string{
		"offline-agent-1.0.0",
		"offline-agent-1.5.0",
		"some-other-cache",
	}, stale)
}

func TestReconcileEmpty(t *testing.T) {
	v := NewVersionManager("1.0.0")
	assert.Empty(t, v.Reconcile(nil))
	assert.Empty(t, v.Reconcile([]string{"offline-agent-1.0.0"}))
}
