package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationDone(t *testing.T) {
	m := New()
	m.OperationDone("add", nil, time.Millisecond)
	m.OperationDone("add", nil, time.Millisecond)
	m.OperationDone("add", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("add", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("add", OutcomeError)))
}

func TestVersionWritten(t *testing.T) {
	m := New()
	m.VersionWritten(true)
	m.VersionWritten(false)
	m.VersionWritten(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.versions.WithLabelValues("major")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.versions.WithLabelValues("minor")))
}

func TestReferenceResolved(t *testing.T) {
	m := New()
	m.ReferenceResolved(OutcomeOK, time.Microsecond)
	m.ReferenceResolved(OutcomeCached, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeCached)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.resolveLatency))
}

func TestMergeApplied(t *testing.T) {
	m := New()
	m.MergeApplied(2, 1, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mergeChanges.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mergeChanges.WithLabelValues("changed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.mergeChanges.WithLabelValues("deleted")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OperationDone("add", nil, time.Second)
		m.VersionWritten(true)
		m.ReferenceResolved(OutcomeOK, time.Second)
		m.MergeApplied(1, 1, 1)
		m.LockWaited(time.Second)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.VersionWritten(true)

	path := filepath.Join(t.TempDir(), "pardoc.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pardoc_document_versions_total{kind="major"} 1`)
}
