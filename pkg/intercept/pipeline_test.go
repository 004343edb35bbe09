package intercept

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBefore_NoHooks(t *testing.T) {
	t.Parallel()
	p := New()
	params := json.RawMessage(`{"a":1}`)
	out, blocked := p.RunBefore("b", "t", params)
	assert.False(t, blocked)
	assert.Equal(t, params, out)
}

func TestRunBefore_SpecificBlocksWildcardNeverRuns(t *testing.T) {
	t.Parallel()
	p := New()
	wildcardCalled := false
	p.Before["navigate"] = func(params json.RawMessage, _, _ string) (json.RawMessage, bool) {
		return params, false
	}
	p.Before[Wildcard] = func(params json.RawMessage, _, _ string) (json.RawMessage, bool) {
		wildcardCalled = true
		return params, true
	}

	_, blocked := p.RunBefore("browser", "navigate", json.RawMessage(`{}`))
	assert.True(t, blocked)
	assert.False(t, wildcardCalled, "wildcard hook must not run once the specific hook blocks")
}

func TestRunBefore_RewriteChain(t *testing.T) {
	t.Parallel()
	p := New()
	p.Before["t"] = func(_ json.RawMessage, _, _ string) (json.RawMessage, bool) {
		return json.RawMessage(`{"step":1}`), true
	}
	p.Before[Wildcard] = func(params json.RawMessage, _, _ string) (json.RawMessage, bool) {
		var m map[string]int
		require.NoError(t, json.Unmarshal(params, &m))
		m["step"] = 2
		out, _ := json.Marshal(m)
		return out, true
	}

	out, blocked := p.RunBefore("b", "t", json.RawMessage(`{}`))
	assert.False(t, blocked)
	assert.JSONEq(t, `{"step":2}`, string(out))
}

func TestRunBefore_PanicIsBlock(t *testing.T) {
	t.Parallel()
	p := New()
	p.Before["t"] = func(json.RawMessage, string, string) (json.RawMessage, bool) {
		panic("boom")
	}
	_, blocked := p.RunBefore("b", "t", json.RawMessage(`{}`))
	assert.True(t, blocked)
}

func TestRunAfter_RewriteAndBlock(t *testing.T) {
	t.Parallel()
	p := New()
	p.After[Wildcard] = func(_, result json.RawMessage, _, _ string) (json.RawMessage, bool) {
		return append([]byte{}, result...), true
	}
	out, blocked := p.RunAfter("b", "t", json.RawMessage(`{}`), json.RawMessage(`{"ok":true}`))
	assert.False(t, blocked)
	assert.JSONEq(t, `{"ok":true}`, string(out))

	p2 := New()
	p2.After["t"] = func(json.RawMessage, json.RawMessage, string, string) (json.RawMessage, bool) {
		return nil, false
	}
	_, blocked2 := p2.RunAfter("b", "t", json.RawMessage(`{}`), json.RawMessage(`{}`))
	assert.True(t, blocked2)
}

func TestRunAfter_PanicIsBlock(t *testing.T) {
	t.Parallel()
	p := New()
	p.After["t"] = func(json.RawMessage, json.RawMessage, string, string) (json.RawMessage, bool) {
		panic("boom")
	}
	_, blocked := p.RunAfter("b", "t", json.RawMessage(`{}`), json.RawMessage(`{}`))
	assert.True(t, blocked)
}
