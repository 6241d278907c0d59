package scope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Scope
		expected int
	}{
		{"public below federated", Public, Federated, -1},
		{"private equals private", Private, Private, 0},
		{"root above public", Root, Public, 1},
		{"federated below root", Federated, Root, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compare(tt.a, tt.b))
		})
	}
}

func TestDominates(t *testing.T) {
	for _, actor := range All() {
		for _, required := range All() {
			assert.Equal(t, actor >= required, actor.Dominates(required),
				"%s dominates %s", actor, required)
		}
	}
}

func TestAllIsAscending(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Equal(t, -1, Compare(all[i-1], all[i]))
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "SCOPE_PUBLIC", Public.String())
	assert.Equal(t, "SCOPE_FEDERATED", Federated.String())
	assert.Equal(t, "SCOPE_PRIVATE", Private.String())
	assert.Equal(t, "SCOPE_ROOT", Root.String())
	assert.Equal(t, "SCOPE(9)", Scope(9).String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Scope
	}{
		{"SCOPE_PUBLIC", Public},
		{"public", Public},
		{"  Federated ", Federated},
		{"scope_private", Private},
		{"ROOT", Root},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}

	_, err := Parse("admin")
	assert.Error(t, err)
}

func TestTextEncoding(t *testing.T) {
	type doc struct {
		Scope Scope `json:"scope" yaml:"scope"`
	}

	data, err := json.Marshal(doc{Scope: Federated})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scope":"SCOPE_FEDERATED"}`, string(data))

	var fromJSON doc
	require.NoError(t, json.Unmarshal([]byte(`{"scope":"root"}`), &fromJSON))
	assert.Equal(t, Root, fromJSON.Scope)

	var fromYAML doc
	require.NoError(t, yaml.Unmarshal([]byte("scope: private\n"), &fromYAML))
	assert.Equal(t, Private, fromYAML.Scope)

	assert.Error(t, json.Unmarshal([]byte(`{"scope":"nobody"}`), &fromJSON))

	_, err = Scope(-1).MarshalText()
	assert.Error(t, err)
}
