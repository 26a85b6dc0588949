package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Run("preserves catalog order", func(t *testing.T) {
		r, err := NewRegistry([]Capability{
			{DataType: Steps, Label: "Steps"},
			{DataType: HeartRateBPM, Label: "Heart rate"},
		})
		require.NoError(t, err)

		assert.Equal(t, []DataType{Steps, HeartRateBPM}, r.DataTypes())
		assert.Equal(t, 2, r.Len())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewRegistry(nil)
		assert.ErrorIs(t, err, ErrEmptyRegistry)
	})

	t.Run("duplicate data type", func(t *testing.T) {
		_, err := NewRegistry([]Capability{
			{DataType: Steps},
			{DataType: Steps},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("missing data type", func(t *testing.T) {
		_, err := NewRegistry([]Capability{{Label: "nameless"}})
		assert.Error(t, err)
	})
}

func TestRegistry_ListIsACopy(t *testing.T) {
	r := DefaultRegistry()

	list := r.List()
	list[0].Label = "changed"

	c, ok := r.Get(list[0].DataType)
	require.True(t, ok)
	assert.NotEqual(t, "changed", c.Label)
}

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	c, ok := r.Get(Location)
	require.True(t, ok)
	assert.False(t, c.Overridable)
	assert.True(t, c.Standard)

	_, ok = r.Get("UNKNOWN")
	assert.False(t, ok)
	assert.False(t, r.Contains("UNKNOWN"))
}

func TestState_Equal(t *testing.T) {
	three := 3.0
	alsoThree := 3.0
	four := 4.0

	tests := []struct {
		name  string
		a, b  State
		equal bool
	}{
		{"defaults", DefaultState(), DefaultState(), true},
		{"enabled differs", State{Enabled: true}, State{Enabled: false}, false},
		{"same override value, different pointers", State{OverrideValue: &three}, State{OverrideValue: &alsoThree}, true},
		{"override values differ", State{OverrideValue: &three}, State{OverrideValue: &four}, false},
		{"override vs none", State{OverrideValue: &three}, State{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
			assert.Equal(t, tt.equal, tt.b.Equal(tt.a))
		})
	}
}

func TestState_WithOverrideCopies(t *testing.T) {
	v := 3.0
	s := DefaultState().WithOverride(&v)
	v = 5.0

	require.NotNil(t, s.OverrideValue)
	assert.Equal(t, 3.0, *s.OverrideValue)
}

func TestRegistry_StandardSet(t *testing.T) {
	r, err := NewRegistry([]Capability{
		{DataType: HeartRateBPM, Overridable: true, Standard: true},
		{DataType: Location, Standard: true},
		{DataType: Steps, Overridable: true},
	})
	require.NoError(t, err)

	set := r.StandardSet()
	assert.Len(t, set, 2)
	assert.Contains(t, set, HeartRateBPM)
	assert.Contains(t, set, Location)
	assert.NotContains(t, set, Steps)
}
