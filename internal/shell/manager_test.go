package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	t.Cleanup(m.ResetForTest)
	return m
}

func TestCreateAndWait(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "echo hello", t.TempDir(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.NotZero(t, s.PID)

	fin, err := m.Wait(context.Background(), s.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, fin.Status)
	require.NotNil(t, fin.ExitCode)
	assert.Equal(t, 0, *fin.ExitCode)
	assert.Contains(t, fin.Aggregated, "hello")
}

func TestCreateCapturesFailureExitCode(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "exit 3", "", nil)
	require.NoError(t, err)

	fin, err := m.Wait(context.Background(), s.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, fin.Status)
	require.NotNil(t, fin.ExitCode)
	assert.Equal(t, 3, *fin.ExitCode)
}

func TestReadOutputAdvancesOffsets(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "echo one; sleep 0.3; echo two", "", nil)
	require.NoError(t, err)

	var first string
	require.Eventually(t, func() bool {
		out, _, err := m.ReadOutput(s.ID, false)
		require.NoError(t, err)
		first += out
		return first != ""
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, first, "one")

	_, err = m.Wait(context.Background(), s.ID, 5*time.Second)
	require.NoError(t, err)
}

func TestWaitTimeoutMarksSession(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "sleep 30", "", nil)
	require.NoError(t, err)

	_, err = m.Wait(context.Background(), s.ID, 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	fin, ok := m.Registry().GetFinishedSession(s.ID)
	require.True(t, ok)
	assert.Equal(t, StatusTimedOut, fin.Status)
}

func TestKillTerminatesProcess(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "sleep 30", "", nil)
	require.NoError(t, err)

	require.NoError(t, m.Kill(s.ID))
	fin, err := m.Wait(context.Background(), s.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusKilled, fin.Status)
}

func TestShellIDsNeverAlias(t *testing.T) {
	m := newTestManager(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		s, err := m.Create(context.Background(), "true", "", nil)
		require.NoError(t, err)
		require.False(t, seen[s.ID], "id %s reused", s.ID)
		seen[s.ID] = true

		// The same object remains addressable until cleanup removes it.
		_, err = m.Wait(context.Background(), s.ID, 5*time.Second)
		require.NoError(t, err)
		_, ok := m.Registry().GetFinishedSession(s.ID)
		assert.True(t, ok)
	}
}

func TestCleanupRemovesOnlyOldSessions(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "true", "", nil)
	require.NoError(t, err)
	_, err = m.Wait(context.Background(), s.ID, 5*time.Second)
	require.NoError(t, err)

	// Too young to evict.
	assert.Equal(t, 0, m.Cleanup(time.Minute))
	_, ok := m.Registry().GetFinishedSession(s.ID)
	assert.True(t, ok)

	// Old enough.
	assert.Equal(t, 1, m.Cleanup(0))
	_, ok = m.Registry().GetFinishedSession(s.ID)
	assert.False(t, ok)
}

func TestKillAllStopsEverything(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 3; i++ {
		_, err := m.Create(context.Background(), "sleep 30", "", nil)
		require.NoError(t, err)
	}
	m.KillAll()

	require.Eventually(t, func() bool {
		return len(m.ListRunning()) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEnvOverlayReachesProcess(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(context.Background(), "echo $AGENTCORE_TEST_VALUE", "", map[string]string{"AGENTCORE_TEST_VALUE": "xyzzy"})
	require.NoError(t, err)

	fin, err := m.Wait(context.Background(), s.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, fin.Aggregated, "xyzzy")
}
