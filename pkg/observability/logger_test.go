package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LogLevelError, ParseLogLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("chatty"))
}

func TestFormatFields(t *testing.T) {
	assert.Equal(t, "", formatFields(nil))
	assert.Equal(t, "", formatFields(map[string]interface{}{}))

	// Keys render sorted so lines are stable
	got := formatFields(map[string]interface{}{"b": 2, "a": "x", "c": true})
	assert.Equal(t, " {a=x, b=2, c=true}", got)
}

func TestLoggerLevelFiltering(t *testing.T) {
	l := NewStandardLoggerWithLevel("test", LogLevelWarn).(*StandardLogger)
	assert.False(t, l.levelEnabled(LogLevelDebug))
	assert.False(t, l.levelEnabled(LogLevelInfo))
	assert.True(t, l.levelEnabled(LogLevelWarn))
	assert.True(t, l.levelEnabled(LogLevelError))
}

func TestLoggerWith(t *testing.T) {
	base := NewStandardLogger("base").(*StandardLogger)
	derived := base.With(map[string]interface{}{"component": "registry"}).(*StandardLogger)

	assert.Empty(t, base.fields, "With must not mutate the parent")
	assert.Equal(t, "registry", derived.fields["component"])

	further := derived.With(map[string]interface{}{"adapter": "echo"}).(*StandardLogger)
	assert.Equal(t, "registry", further.fields["component"])
	assert.Equal(t, "echo", further.fields["adapter"])
	assert.Len(t, derived.fields, 1)
}

func TestLoggerWithPrefix(t *testing.T) {
	base := NewStandardLoggerWithLevel("base", LogLevelDebug).(*StandardLogger)
	derived := base.WithPrefix("child").(*StandardLogger)
	assert.Equal(t, "child", derived.prefix)
	assert.Equal(t, LogLevelDebug, derived.level, "the level carries over")
}
