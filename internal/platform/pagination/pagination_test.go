package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layoutaria/internal/platform/apperr"
)

func TestNormalize(t *testing.T) {
	q, err := Normalize(Query{}, 20, 50)
	require.NoError(t, err)
	assert.Equal(t, Query{Page: 1, Limit: 20}, q)

	for _, bad := range []Query{{Page: -1}, {Page: 101}, {Limit: -3}, {Limit: 51}} {
		_, err := Normalize(bad, 20, 50)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", bad)
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got, p := Slice(items, Query{Page: 2, Limit: 2})
	assert.Equal(t, []int{3, 4}, got)
	assert.Equal(t, Page{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, p)

	got, p = Slice(items, Query{Page: 4, Limit: 2})
	assert.Empty(t, got)
	assert.Equal(t, 3, p.TotalPages)

	got, p = Slice([]int(nil), Query{Page: 1, Limit: 10})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, Page{Page: 1, Limit: 10, Total: 0, TotalPages: 1}, p)
}
