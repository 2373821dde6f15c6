package conflict

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShallowMerge(t *testing.T) {
	a := Side{DeviceID: "device-a", OperationID: "op-a", Payload: json.RawMessage(`{"title":"A","level":1}`)}
	b := Side{DeviceID: "device-b", OperationID: "op-b", Payload: json.RawMessage(`{"title":"B","tags":["x"]}`)}

	merged, err := ShallowMerge(a, b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"A","level":1,"tags":["x"]}`, string(merged))

	// коммутативность: результат не зависит от того, какая сторона локальная
	swapped, err := ShallowMerge(b, a)
	require.NoError(t, err)
	assert.Equal(t, string(merged), string(swapped))
}

func TestShallowMerge_NotObject(t *testing.T) {
	a := Side{DeviceID: "device-a", OperationID: "op-a", Payload: json.RawMessage(`["list"]`)}
	b := Side{DeviceID: "device-b", OperationID: "op-b", Payload: json.RawMessage(`{"title":"B"}`)}

	_, err := ShallowMerge(a, b)
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = ShallowMerge(b, Side{DeviceID: "device-c", OperationID: "op-c", Payload: json.RawMessage(`null`)})
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestBuiltinHook(t *testing.T) {
	hook, err := BuiltinHook(HookShallow)
	require.NoError(t, err)
	assert.NotNil(t, hook)

	_, err = BuiltinHook("deep")
	assert.ErrorIs(t, err, ErrUnknownHook)
}
