// Package batch sends ordered collections to a language model in chunks and keeps the
// replies aligned with their inputs.
package batch

// Indexed pairs a value with its position in the original collection.
type Indexed[T any] struct {
	Index int
	Value T
}

// Chunk splits items into contiguous, order-preserving sub-batches.
//
// size <= 0 yields a single batch, size == 1 one batch per item, and size k > 1
// ceil(N/k) batches of at most k items. Nothing is filtered out.
func Chunk[T any](items []T, size int) [][]Indexed[T] {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size > len(items) {
		size = len(items)
	}

	chunks := make([][]Indexed[T], 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunk := make([]Indexed[T], 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, Indexed[T]{Index: i, Value: items[i]})
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
