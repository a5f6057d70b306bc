package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnDevice_SelectsBeforeRunning(t *testing.T) {
	var calls []string
	set := func(id int) error {
		calls = append(calls, "set")
		assert.Equal(t, 1, id)
		return nil
	}

	err := onDevice(set, 1, func() error {
		calls = append(calls, "run")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"set", "run"}, calls)
}

func TestOnDevice_SelectFailureSkipsWork(t *testing.T) {
	boom := errors.New("invalid device ordinal")
	ran := false

	err := onDevice(func(int) error { return boom }, 3, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "select device 3")
	assert.False(t, ran)
}

func TestOnDevice_ReturnsWorkError(t *testing.T) {
	boom := errors.New("stream create failed")
	err := onDevice(func(int) error { return nil }, 0, func() error { return boom })
	assert.Equal(t, boom, err)
}

func TestCheckDeviceID(t *testing.T) {
	assert.NoError(t, checkDeviceID(0, 1))
	assert.NoError(t, checkDeviceID(1, 2))
	assert.Error(t, checkDeviceID(2, 2))
	assert.Error(t, checkDeviceID(-1, 2))
	assert.ErrorContains(t, checkDeviceID(0, 0), "0 devices")
}

func TestOpen_UnknownRuntime(t *testing.T) {
	_, err := Open("tpu", 0)
	assert.ErrorContains(t, err, "unknown runtime")
}
