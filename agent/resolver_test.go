package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resolverActions = []Action{
	{Name: "SEND_IMAGE", Similes: []string{"DRAW", "PAINT_PICTURE"}},
	{Name: "CONTINUE", Similes: []string{"ELABORATE"}},
	{Name: "IGNORE"},
}

func TestFuzzyActionResolver(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"exact", "IGNORE", "IGNORE", true},
		{"case and underscores", "send_Image", "SEND_IMAGE", true},
		{"underscores removed everywhere", "S_E_N_D_IMAGE", "SEND_IMAGE", true},
		{"input contains name", "PLEASE_CONTINUE_NOW", "CONTINUE", true},
		{"name contains input", "CONT", "CONTINUE", true},
		{"simile", "paint picture", "", false},
		{"simile underscores", "PAINTPICTURE", "SEND_IMAGE", true},
		{"simile substring", "elaborated", "CONTINUE", true},
		{"unknown", "DANCE", "", false},
		{"empty", "  ", "", false},
	}
	r := FuzzyActionResolver{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.input, resolverActions)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.Name)
			}
		})
	}
}

func TestFuzzyActionResolver_NamesBeforeSimiles(t *testing.T) {
	actions := []Action{
		{Name: "REPLY", Similes: []string{"GREET"}},
		{Name: "GREET"},
	}
	got, ok := FuzzyActionResolver{}.Resolve("greet", actions)
	require.True(t, ok)
	assert.Equal(t, "GREET", got.Name)
}

func TestExactActionResolver(t *testing.T) {
	r := ExactActionResolver{}

	got, ok := r.Resolve("send_image", resolverActions)
	require.True(t, ok)
	assert.Equal(t, "SEND_IMAGE", got.Name)

	got, ok = r.Resolve("DRAW", resolverActions)
	require.True(t, ok)
	assert.Equal(t, "SEND_IMAGE", got.Name)

	_, ok = r.Resolve("CONT", resolverActions)
	assert.False(t, ok, "substrings do not match")
	_, ok = r.Resolve("PLEASE_CONTINUE", resolverActions)
	assert.False(t, ok)
}

func TestResolverReturnsRegisteredAction(t *testing.T) {
	actions := append([]Action(nil), resolverActions...)
	got, ok := FuzzyActionResolver{}.Resolve("IGNORE", actions)
	require.True(t, ok)
	assert.Same(t, &actions[2], got)
}

func TestNewActionResolver(t *testing.T) {
	for _, name := range []string{"", "fuzzy", " FUZZY "} {
		r, err := NewActionResolver(name)
		require.NoError(t, err)
		assert.IsType(t, FuzzyActionResolver{}, r)
	}
	r, err := NewActionResolver("exact")
	require.NoError(t, err)
	assert.IsType(t, ExactActionResolver{}, r)

	_, err = NewActionResolver("telepathic")
	assert.Error(t, err)
}
