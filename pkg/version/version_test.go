package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.0", Version{1, 0}},
		{"1.1", Version{1, 1}},
		{"2.0", Version{2, 0}},
		{"10.23", Version{10, 23}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.input, v.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "1", "abc", "1.0.0", "1.x", "-1.0", ".1", "1.", "70000.0"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestCompatible(t *testing.T) {
	v1 := Version{1, 0}
	assert.True(t, v1.Compatible(Version{1, 7}))
	assert.False(t, v1.Compatible(Version{2, 0}))

	assert.True(t, CompatibleString(Current))
	assert.True(t, CompatibleString("1.3"))
	assert.False(t, CompatibleString("2.0"))
	assert.False(t, CompatibleString(""))
}

func TestMustCurrent(t *testing.T) {
	assert.NotPanics(t, func() { MustCurrent() })
	assert.Equal(t, Current, MustCurrent().String())
}
