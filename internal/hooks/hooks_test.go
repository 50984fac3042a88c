package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchKeyWildcardSegment(t *testing.T) {
	assert.True(t, matchKey("tool:*", NewKey(CategoryTool, EventPreExecute, "bash")))
	assert.True(t, matchKey("tool:pre_execute", NewKey(CategoryTool, EventPreExecute, "bash")))
	assert.False(t, matchKey("tool:post_execute", NewKey(CategoryTool, EventPreExecute, "bash")))
}

func TestMatchKeyCommaAlternatives(t *testing.T) {
	pattern := "llm:start,llm:end"
	assert.True(t, matchKey(pattern, NewKey(CategoryLLM, EventStart, "")))
	assert.True(t, matchKey(pattern, NewKey(CategoryLLM, EventEnd, "")))
	assert.False(t, matchKey(pattern, NewKey(CategoryLLM, EventPostResponse, "")))
}

func TestRegistryDispatchesInPriorityOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []string

	r.Register("tool:*", func(ctx context.Context, p *Payload) error {
		order = append(order, "low")
		return nil
	}, WithPriority(PriorityLow))
	r.Register("tool:*", func(ctx context.Context, p *Payload) error {
		order = append(order, "highest")
		return nil
	}, WithPriority(PriorityHighest))

	r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPostExecute})
	require.Equal(t, []string{"highest", "low"}, order)
}

func TestRegistryPreExecuteVetoOnHandlerError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("tool:pre_execute", func(ctx context.Context, p *Payload) error {
		return errors.New("not allowed here")
	})

	outcome := r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPreExecute, ToolName: "bash"})
	assert.True(t, outcome.Vetoed)
	assert.Equal(t, "not allowed here", outcome.Reason)
}

func TestRegistryNonPreExecuteErrorsDoNotVeto(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("tool:post_execute", func(ctx context.Context, p *Payload) error {
		return errors.New("logging failed")
	})

	outcome := r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPostExecute})
	assert.False(t, outcome.Vetoed)
	assert.Len(t, outcome.Errs, 1)
}

func TestRegistryUnregisterStopsDispatch(t *testing.T) {
	r := NewRegistry(nil)
	called := false
	id := r.Register("tool:*", func(ctx context.Context, p *Payload) error {
		called = true
		return nil
	})
	require.True(t, r.Unregister(id))
	r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPreExecute})
	assert.False(t, called)
}

func TestRegistryHandlerPanicIsRecoveredAsError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("tool:pre_execute", func(ctx context.Context, p *Payload) error {
		panic("boom")
	})
	outcome := r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPreExecute})
	assert.True(t, outcome.Vetoed)
	assert.Contains(t, outcome.Reason, "hook panic")
}

func TestSanitizeEnvValueStripsNullBytesAndNewlinesAndCaps(t *testing.T) {
	v := sanitizeEnvValue("a\x00b\nc\r\nd")
	assert.Equal(t, "ab c d", v)

	long := ""
	for i := 0; i < maxEnvValueLen+100; i++ {
		long += "x"
	}
	assert.Len(t, sanitizeEnvValue(long), maxEnvValueLen)
}

func TestSanitizeEnvKeyReplacesInvalidChars(t *testing.T) {
	assert.Equal(t, "FOO_BAR", sanitizeEnvKey("foo-bar"))
	assert.Equal(t, "FOO_BAR_BAZ", sanitizeEnvKey("foo.bar baz"))
}

// writeVetoScript writes a tiny shell script that echoes
// "denied: $RUNTIME_TOOL_NAME" to stderr and exits with exitCode, and
// returns a SubprocessHook invoking it.
func writeVetoScript(t *testing.T, exitCode int) SubprocessHook {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hook.sh")
	script := fmt.Sprintf("#!/bin/sh\necho \"denied: $RUNTIME_TOOL_NAME\" 1>&2\nexit %d\n", exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return SubprocessHook{Pattern: "tool:pre_execute", Command: "/bin/sh", Args: []string{path}, Timeout: 2 * time.Second, Enabled: true, Name: "veto-test"}
}

func TestSubprocessHookVetoesPreExecuteOnNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	r := NewRegistry(nil)
	r.AddSubprocessHook(writeVetoScript(t, 1))

	outcome := r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPreExecute, ToolName: "bash"})
	assert.True(t, outcome.Vetoed)
	assert.Contains(t, outcome.Reason, "denied: bash")
}

func TestSubprocessHookZeroExitDoesNotVeto(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	r := NewRegistry(nil)
	r.AddSubprocessHook(writeVetoScript(t, 0))

	outcome := r.Trigger(context.Background(), &Payload{Category: CategoryTool, Event: EventPreExecute, ToolName: "bash"})
	assert.False(t, outcome.Vetoed)
}
