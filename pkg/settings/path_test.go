package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

type target struct {
	IP   [4]uint8 `settings:"ip"`
	Port uint16   `settings:"port"`
}

type testSettings struct {
	Gain     [2]float32 `settings:"gain"`
	Offsets  []int16
	Target   target  `settings:"stream_target"`
	Enabled  *bool   `settings:"enabled"`
	Internal float64 `settings:"-"`
	hidden   int
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := wire.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestSetNestedPaths(t *testing.T) {
	s := testSettings{Offsets: []int16{0, 0, 0}}

	require.NoError(t, Set(&s, "gain/1", encode(t, float32(2.5))))
	require.NoError(t, Set(&s, "offsets/2", encode(t, int16(-7))))
	require.NoError(t, Set(&s, "stream_target", encode(t, map[string]any{"ip": []int{10, 0, 0, 2}, "port": 9293})))
	require.NoError(t, Set(&s, "stream_target/port", encode(t, uint16(4000))))
	require.NoError(t, Set(&s, "enabled", encode(t, true)))

	assert.Equal(t, [2]float32{0, 2.5}, s.Gain)
	assert.Equal(t, []int16{0, 0, -7}, s.Offsets)
	assert.Equal(t, target{IP: [4]uint8{10, 0, 0, 2}, Port: 4000}, s.Target)
	require.NotNil(t, s.Enabled)
	assert.True(t, *s.Enabled)
}

func TestSetErrors(t *testing.T) {
	s := testSettings{}

	tests := []struct {
		path    string
		payload []byte
		wantErr error
	}{
		{"", encode(t, 1), ErrUnknownPath},
		{"missing", encode(t, 1), ErrUnknownPath},
		{"gain/2", encode(t, float32(1)), ErrUnknownPath},
		{"gain/x", encode(t, float32(1)), ErrUnknownPath},
		{"internal", encode(t, 1.0), ErrUnknownPath},
		{"hidden", encode(t, 1), ErrUnknownPath},
		{"stream_target/port/0", encode(t, 1), ErrUnknownPath},
		{"stream_target/port", encode(t, "not a number"), ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.ErrorIs(t, Set(&s, tt.path, tt.payload), tt.wantErr)
		})
	}

	assert.Equal(t, testSettings{}, s, "failed sets leave the target unchanged")
}

type servo struct {
	Gain float32 `settings:"gain"`
}

type pointerSettings struct {
	Servo *servo `settings:"servo"`
}

func TestSetFailureKeepsNilPointers(t *testing.T) {
	s := pointerSettings{}

	assert.ErrorIs(t, Set(&s, "servo/missing", encode(t, 1.5)), ErrUnknownPath)
	assert.Nil(t, s.Servo)

	assert.ErrorIs(t, Set(&s, "servo/gain", encode(t, "not a number")), ErrDecode)
	assert.Nil(t, s.Servo)

	_, err := Resolve(&s, "servo/gain/0")
	assert.ErrorIs(t, err, ErrUnknownPath)
	assert.Nil(t, s.Servo)

	require.NoError(t, Set(&s, "servo/gain", encode(t, float32(1.5))))
	require.NotNil(t, s.Servo)
	assert.Equal(t, float32(1.5), s.Servo.Gain)
}

func TestSetRestoreClearsAllocatedPointers(t *testing.T) {
	s := pointerSettings{}

	restore, err := set(&s, "servo/gain", encode(t, float32(2)))
	require.NoError(t, err)
	require.NotNil(t, s.Servo)

	restore()
	assert.Nil(t, s.Servo)
}

func TestSetRequiresPointer(t *testing.T) {
	assert.Error(t, Set(testSettings{}, "gain/0", encode(t, float32(1))))
}

func TestPaths(t *testing.T) {
	s := testSettings{}
	assert.Equal(t, []string{
		"gain/0",
		"gain/1",
		"offsets",
		"stream_target/ip/0",
		"stream_target/ip/1",
		"stream_target/ip/2",
		"stream_target/ip/3",
		"stream_target/port",
		"enabled",
	}, Paths(&s))
}
