package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDArg(t *testing.T) {
	id, ok := UUIDArg("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	assert.True(t, ok)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", id)

	for _, bad := range []string{"", "42", "not-a-uuid", "6f9619ff-8b86-d011-b42d-00c04fc964f"} {
		_, ok := UUIDArg(bad)
		assert.False(t, ok, bad)
	}
}
