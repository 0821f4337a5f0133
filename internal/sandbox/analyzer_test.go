package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(16, nil)
	require.NoError(t, err)
	return a
}

func TestAnalyzeSafeCode(t *testing.T) {
	a := newTestAnalyzer(t)

	cases := []struct {
		name string
		code string
	}{
		{"Pure Computation", "import math\nresult = math.sqrt(16)"},
		{"Allowed Multi Import", "import json, math\nresult = json.dumps({\"x\": math.pi})"},
		{"From Allowed Module", "from collections import Counter\nresult = Counter(\"aab\")"},
		{"Dotted Allowed Module", "import datetime\nresult = datetime.datetime.utcnow().year"},
		{"Blocked Name In String", "x = \"import os\"\nresult = x"},
		{"Blocked Name In Comment", "# os.system('ls')\nresult = 1"},
		{"Blocked Name In Triple Quote", "doc = \"\"\"\nimport os\nos.system('ls')\n\"\"\"\nresult = len(doc)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := a.Analyze(tc.code, DefaultPolicy())
			assert.True(t, analysis.IsSafe, "issues: %v", analysis.Issues)
			assert.Empty(t, analysis.Issues)
		})
	}
}

func TestAnalyzeRejections(t *testing.T) {
	a := newTestAnalyzer(t)

	cases := []struct {
		name   string
		code   string
		module string
	}{
		{"Blocked Import", "import os", "os"},
		{"Blocked From Import", "from subprocess import run", "subprocess"},
		{"Blocked Dotted Import", "import os.path", "os"},
		{"Not On Allow List", "import requests", "requests"},
		{"Blocked In Multi Import", "import math, socket", "socket"},
		{"Blocked With Alias", "import shutil as sh", "shutil"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := a.Analyze(tc.code, DefaultPolicy())
			require.False(t, analysis.IsSafe)
			require.NotEmpty(t, analysis.Issues)
			assert.Equal(t, tc.module, analysis.Issues[0].Module)
			assert.Equal(t, 1, analysis.Issues[0].Line)
		})
	}

	t.Run("Dangerous Callables", func(t *testing.T) {
		for _, code := range []string{
			"eval('1+1')",
			"exec('x = 1')",
			"compile('x', '<s>', 'exec')",
			"open('/etc/passwd')",
			"__import__('os')",
			"import importlib",
		} {
			analysis := a.Analyze(code, DefaultPolicy())
			assert.False(t, analysis.IsSafe, "expected rejection for %q", code)
		}
	})
}

func TestAnalyzeAliasTracking(t *testing.T) {
	a := newTestAnalyzer(t)

	analysis := a.Analyze("import os as helper\nhelper.system('id')", DefaultPolicy())
	require.False(t, analysis.IsSafe)

	var flaggedAttrLine bool
	for _, issue := range analysis.Issues {
		if issue.Line == 2 {
			flaggedAttrLine = true
			assert.Equal(t, "os", issue.Module)
		}
	}
	assert.True(t, flaggedAttrLine, "aliased process primitive must be flagged: %v", analysis.Issues)
}

func TestAnalyzeReportsAllLines(t *testing.T) {
	a := newTestAnalyzer(t)

	analysis := a.Analyze("import os\nimport socket\nos.system('ls')", DefaultPolicy())
	require.False(t, analysis.IsSafe)

	lines := make(map[int]bool)
	for _, issue := range analysis.Issues {
		lines[issue.Line] = true
	}
	assert.True(t, lines[1])
	assert.True(t, lines[2])
	assert.True(t, lines[3])
}

func TestAnalyzeVerdictCache(t *testing.T) {
	a := newTestAnalyzer(t)
	code := "import math\nresult = math.tau"

	first := a.Analyze(code, DefaultPolicy())
	second := a.Analyze(code, DefaultPolicy())
	assert.Same(t, first, second, "identical submissions should hit the verdict cache")
}

func TestAnalyzePolicyScopesCache(t *testing.T) {
	a := newTestAnalyzer(t)
	code := "import numpy"

	strict := a.Analyze(code, DefaultPolicy())
	assert.False(t, strict.IsSafe)

	relaxed := a.Analyze(code, Policy{AllowedModules: []string{"numpy"}})
	assert.True(t, relaxed.IsSafe, "a different policy must not reuse the strict verdict")
}

func TestPolicyAllows(t *testing.T) {
	policy := DefaultPolicy()

	assert.True(t, policy.Allows("math"))
	assert.True(t, policy.Allows("datetime.timezone"))
	assert.False(t, policy.Allows("os"))
	assert.False(t, policy.Allows("os.path"))
	assert.False(t, policy.Allows("requests"))

	open := Policy{BlockedModules: []string{"socket"}}
	assert.True(t, open.Allows("anything"), "empty allow-list permits all but the deny-list")
	assert.False(t, open.Allows("socket"))
}
