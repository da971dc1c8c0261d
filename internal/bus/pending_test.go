package bus

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaryorg/lxddns/internal/lxderr"
)

func TestPendingSetRejectsDuplicateInsert(t *testing.T) {
	p := newPendingSet()
	id := uuid.New()

	require.NoError(t, p.insert(id))
	err := p.insert(id)
	require.Error(t, err)
	assert.Equal(t, lxderr.DuplicateCorrelationId, lxderr.GetCategory(err))
}

func TestPendingSetRemoveAllowsReinsert(t *testing.T) {
	p := newPendingSet()
	id := uuid.New()

	require.NoError(t, p.insert(id))
	p.remove(id)
	assert.False(t, p.contains(id))
	require.NoError(t, p.insert(id))
}

func TestPendingSetContains(t *testing.T) {
	p := newPendingSet()
	id := uuid.New()
	assert.False(t, p.contains(id))
	require.NoError(t, p.insert(id))
	assert.True(t, p.contains(id))
}

func TestNextDeadlineGrowsWithElapsed(t *testing.T) {
	short := nextDeadline(100*time.Millisecond, deadlineExtension)
	long := nextDeadline(1000*time.Millisecond, deadlineExtension)
	assert.Greater(t, long, short)
}

func TestNextDeadlineFormula(t *testing.T) {
	elapsed := 500 * time.Millisecond
	extension := 250 * time.Millisecond
	want := elapsed + (elapsed+2*extension)/2
	assert.Equal(t, want, nextDeadline(elapsed, extension))
}

func TestNextDeadlineZeroElapsed(t *testing.T) {
	got := nextDeadline(0, deadlineExtension)
	assert.Equal(t, deadlineExtension, got)
}
