package sandbox

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHarness(t *testing.T) {
	t.Run("Substitutes All Markers", func(t *testing.T) {
		script, err := buildHarness(&Request{
			Code:   "result = 1",
			Policy: DefaultPolicy(),
		})
		require.NoError(t, err)
		assert.NotContains(t, script, "@@", "no template markers may survive rendering")
		assert.Contains(t, script, blockedImportMarker)
		assert.Contains(t, script, resultMarker)
		assert.Contains(t, script, "RLIMIT_AS")
	})

	t.Run("Guest Code Is Quoted", func(t *testing.T) {
		// Guest code with quotes and newlines must be embedded as a JSON string
		// literal, never as raw source.
		code := "s = \"he said \\\"hi\\\"\"\nresult = s"
		script, err := buildHarness(&Request{Code: code, Policy: DefaultPolicy()})
		require.NoError(t, err)

		codeJSON, err := json.Marshal(code)
		require.NoError(t, err)
		embedded, err := json.Marshal(string(codeJSON))
		require.NoError(t, err)
		assert.Contains(t, script, "_json.loads("+string(embedded)+")")
		assert.NotContains(t, script, "\nresult = s", "raw guest source must not appear outside the literal")
	})

	t.Run("Guest Scope Uses Curated Builtins", func(t *testing.T) {
		script, err := buildHarness(&Request{Code: "result = 1", Policy: DefaultPolicy()})
		require.NoError(t, err)
		assert.Contains(t, script, `"__builtins__": _safe_builtins`)
		assert.NotContains(t, script, `"__builtins__": _builtins`,
			"the guest must never see the full builtins module")
		for _, name := range []string{`"open"`, `"eval"`, `"exec"`, `"compile"`, `"input"`, `"breakpoint"`, `"vars"`, `"memoryview"`} {
			assert.Contains(t, script, name, "stripped name missing from the curated set")
		}
		assert.Contains(t, script, `_safe_builtins["__import__"] = _guarded_import`)
	})

	t.Run("Ceiling Bytes", func(t *testing.T) {
		script, err := buildHarness(&Request{
			Code:   "result = 1",
			Policy: Policy{MemoryCeilingMB: 2},
		})
		require.NoError(t, err)
		assert.Contains(t, script, "_limit = 2097152")
	})

	t.Run("Empty Module Lists Render As Arrays", func(t *testing.T) {
		script, err := buildHarness(&Request{Code: "result = 1"})
		require.NoError(t, err)
		assert.Contains(t, script, `"[]"`)
	})
}

func TestExtractValue(t *testing.T) {
	t.Run("Value And Stdout Split", func(t *testing.T) {
		value, stdout := extractValue("hello\n" + resultMarker + "42\n")
		assert.Equal(t, 42.0, value)
		assert.Equal(t, "hello", stdout)
	})

	t.Run("Structured Value", func(t *testing.T) {
		value, _ := extractValue(resultMarker + `{"total": 6, "items": [1, 2, 3]}` + "\n")
		require.IsType(t, map[string]interface{}{}, value)
		assert.Equal(t, 6.0, value.(map[string]interface{})["total"])
	})

	t.Run("No Marker", func(t *testing.T) {
		value, stdout := extractValue("plain output\n")
		assert.Nil(t, value)
		assert.Equal(t, "plain output\n", stdout)
	})

	t.Run("Malformed Payload", func(t *testing.T) {
		raw := resultMarker + "{not json\n"
		value, stdout := extractValue(raw)
		assert.Nil(t, value)
		assert.Equal(t, raw, stdout)
	})

	t.Run("Last Marker Wins", func(t *testing.T) {
		guest := "echoing " + resultMarker + "1\n"
		value, stdout := extractValue(guest + resultMarker + "2\n")
		assert.Equal(t, 2.0, value)
		assert.True(t, strings.HasSuffix(stdout, "1"), "guest-printed marker text stays in stdout")
	})
}
