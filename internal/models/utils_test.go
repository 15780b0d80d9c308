package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMapScan(t *testing.T) {
	var m JSONMap

	require.NoError(t, m.Scan([]byte(`{"List-Id":"<dev.example.com>"}`)))
	assert.Equal(t, "<dev.example.com>", m.GetString("List-Id"))

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}

func TestJSONMapGetStringMissingKey(t *testing.T) {
	m := JSONMap{"Precedence": "bulk", "X-Priority": 3}

	assert.Equal(t, "bulk", m.GetString("Precedence"))
	assert.Equal(t, "", m.GetString("X-Priority"))
	assert.Equal(t, "", m.GetString("absent"))
}

func TestJSONMapValueNil(t *testing.T) {
	var m JSONMap

	v, err := m.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
