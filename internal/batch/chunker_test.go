package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkConcatenationPreservesOrder(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 2, 7, 10, 20, 33} {
		for _, size := range []int{-1, 0, 1, 3, 10, 50} {
			t.Run(fmt.Sprintf("n=%d/size=%d", n, size), func(t *testing.T) {
				items := make([]int, n)
				for i := range items {
					items[i] = i * 10
				}

				chunks := Chunk(items, size)

				var flat []int
				for _, chunk := range chunks {
					require.NotEmpty(t, chunk)
					for _, entry := range chunk {
						assert.Equal(t, len(flat), entry.Index)
						flat = append(flat, entry.Value)
					}
				}
				if n == 0 {
					assert.Empty(t, chunks)
					return
				}
				assert.Equal(t, items, flat)
			})
		}
	}
}

func TestChunkSizes(t *testing.T) {
	t.Parallel()

	items := make([]string, 23)

	assert.Len(t, Chunk(items, 0), 1)
	assert.Len(t, Chunk(items, 1), 23)

	chunks := Chunk(items, 10)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 3)
	assert.Equal(t, 20, chunks[2][0].Index)
}

func TestChunkKeepsPlaceholders(t *testing.T) {
	t.Parallel()

	items := []*string{ptr("a"), nil, ptr("c")}
	chunks := Chunk(items, 2)

	require.Len(t, chunks, 2)
	assert.Nil(t, chunks[0][1].Value)
	assert.Equal(t, 1, chunks[0][1].Index)
	assert.Equal(t, 2, chunks[1][0].Index)
}

func ptr(s string) *string { return &s }
