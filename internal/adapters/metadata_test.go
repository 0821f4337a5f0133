package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() *Metadata {
	return &Metadata{
		Name:          "sample",
		Version:       "1.0.0",
		Kind:          KindSoft,
		SecurityLevel: SecurityTrusted,
	}
}

func TestMetadataValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validMetadata().Validate())
	})

	t.Run("Missing Name", func(t *testing.T) {
		m := validMetadata()
		m.Name = "  "
		assert.Error(t, m.Validate())
	})

	t.Run("Missing Version", func(t *testing.T) {
		m := validMetadata()
		m.Version = ""
		assert.Error(t, m.Validate())
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		m := validMetadata()
		m.Kind = "quantum"
		assert.Error(t, m.Validate())
	})

	t.Run("Unknown Security Level", func(t *testing.T) {
		m := validMetadata()
		m.SecurityLevel = "kinda-trusted"
		assert.Error(t, m.Validate())
	})

	t.Run("Empty Security Level Allowed", func(t *testing.T) {
		m := validMetadata()
		m.SecurityLevel = ""
		assert.NoError(t, m.Validate())
	})

	t.Run("Bad Capability Schema", func(t *testing.T) {
		m := validMetadata()
		m.Capabilities = []Capability{{Name: "broken", InputSchema: []byte(`{"type": 12}`)}}
		assert.Error(t, m.Validate())
	})

	t.Run("Unnamed Capability", func(t *testing.T) {
		m := validMetadata()
		m.Capabilities = []Capability{{Description: "anonymous"}}
		assert.Error(t, m.Validate())
	})
}

func TestMetadataSandboxed(t *testing.T) {
	m := validMetadata()
	assert.False(t, m.Sandboxed())

	m.SecurityLevel = SecuritySandboxed
	assert.True(t, m.Sandboxed())

	m = validMetadata()
	m.Capabilities = []Capability{{Name: "gen", GeneratesCode: true}}
	assert.True(t, m.Sandboxed(), "a code-generating capability forces the sandbox")
}

func TestCapabilityValidateInput(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string"},
			"limit": {"type": "integer", "minimum": 1}
		}
	}`)
	c := Capability{Name: "search", InputSchema: schema}
	require.NoError(t, c.Validate())

	t.Run("Valid Input", func(t *testing.T) {
		assert.NoError(t, c.ValidateInput(map[string]interface{}{"query": "adapters", "limit": 5}))
	})

	t.Run("Missing Required Field", func(t *testing.T) {
		err := c.ValidateInput(map[string]interface{}{"limit": 5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search")
	})

	t.Run("Wrong Type", func(t *testing.T) {
		assert.Error(t, c.ValidateInput(map[string]interface{}{"query": 42}))
	})

	t.Run("No Schema Accepts Anything", func(t *testing.T) {
		open := Capability{Name: "open"}
		assert.NoError(t, open.ValidateInput("whatever"))
		assert.NoError(t, open.ValidateInput(nil))
	})
}
