package value

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shmcache/model"
)

func TestFlatten(t *testing.T) {
	var testCases = []struct {
		description string
		value       interface{}
		expectType  model.TypeTag
		expectKind  model.ContainerKind
		expectShape []int
		expectBytes int
	}{
		{description: "float64 list", value: []float64{1, 2, 3}, expectType: model.TypeFloat64, expectKind: model.KindList, expectShape: []int{3}, expectBytes: 24},
		{description: "int32 tuple", value: Tuple[int32]{1, 2}, expectType: model.TypeInt32, expectKind: model.KindTuple, expectShape: []int{2}, expectBytes: 8},
		{description: "2x2 matrix", value: NewArray([]int64{1, 2, 3, 4}, 2, 2), expectType: model.TypeInt64, expectKind: model.KindArray, expectShape: []int{2, 2}, expectBytes: 32},
		{description: "opaque bytes", value: []byte("abc"), expectType: model.TypeBytes, expectKind: model.KindOpaque, expectBytes: 3},
		{description: "stack of vectors", value: Stack[float32]{NewArray([]float32{1, 2}), NewArray([]float32{3, 4})}, expectType: model.TypeFloat32, expectKind: model.KindList, expectShape: []int{2, 2}, expectBytes: 16},
		{description: "scalar", value: &Array[float64]{Data: []float64{3.5}, Shape: []int{}}, expectType: model.TypeFloat64, expectKind: model.KindArray, expectBytes: 8},
		{description: "empty list", value: []uint16{}, expectType: model.TypeUint16, expectKind: model.KindList, expectShape: []int{0}, expectBytes: 0},
	}

	for _, testCase := range testCases {
		meta, data, err := Flatten(testCase.value)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expectType, meta.Type, testCase.description)
		assert.Equal(t, testCase.expectKind, meta.Kind, testCase.description)
		assert.Equal(t, testCase.expectShape, meta.Shape, testCase.description)
		assert.Len(t, data, testCase.expectBytes, testCase.description)
	}
}

func TestFlatten_Unsupported(t *testing.T) {
	for _, v := range []interface{}{
		"text",
		map[string]int{"a": 1},
		struct{ A int }{A: 1},
		[]string{"a"},
		nil,
		(*Array[float64])(nil),
		Stack[int64]{NewArray([]int64{1}), NewArray([]int64{1, 2})},
	} {
		_, _, err := Flatten(v)
		assert.True(t, errors.Is(err, ErrUnsupported), "%T", v)
	}
	_, _, err := Flatten(NewArray([]float64{1, 2, 3}, 2, 2))
	assert.Error(t, err)
}

func TestCast_RoundTrip(t *testing.T) {
	source := NewArray([]float64{1.5, -2, 3.25, 4, 5, 6}, 2, 3)
	meta, data, err := Flatten(source)
	require.NoError(t, err)

	view, err := View[float64](meta, data)
	require.NoError(t, err)
	assert.Equal(t, source.Shape, view.Shape)
	assert.Equal(t, source.Data, view.Data)

	row, err := view.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, row.Data)
	_, err = view.Row(2)
	assert.Error(t, err)

	data[7] = 0
	assert.NotEqual(t, 1.5, view.Data[0], "view aliases the underlying bytes")

	_, err = Cast[int64](meta.Type, data)
	assert.Error(t, err)
	_, err = Cast[float64](meta.Type, data[:7])
	assert.Error(t, err)
}

func TestView_Scalar(t *testing.T) {
	meta, data, err := Flatten(&Array[int64]{Data: []int64{42}, Shape: []int{}})
	require.NoError(t, err)
	view, err := View[int64](meta, data)
	require.NoError(t, err)
	assert.Empty(t, view.Shape)
	assert.Equal(t, []int64{42}, view.Data)
	assert.Equal(t, 1, view.Len())
}
