package containers

const DefaultArenaChunkSize = 64

// Arena is a growable container whose elements never relocate.
// Storage grows in fixed-capacity chunks; an element is appended into
// the current chunk and a new chunk is started when it fills, so a
// pointer returned by Alloc or At stays valid until Reset. This is
// the contract that lets callers hold raw element pointers while the
// arena keeps growing.
type Arena[T any] struct {
	chunks    [][]T
	chunkSize int
	length    int
}

// NewArena creates an arena growing in chunks of chunkSize elements.
// A chunkSize < 1 falls back to DefaultArenaChunkSize.
func NewArena[T any](chunkSize int) *Arena[T] {
	if chunkSize < 1 {
		chunkSize = DefaultArenaChunkSize
	}
	return &Arena[T]{chunkSize: chunkSize}
}

// Alloc appends a zero-valued element and returns its stable pointer
// together with its index.
func (a *Arena[T]) Alloc() (int, *T) {
	last := len(a.chunks) - 1
	if last < 0 || len(a.chunks[last]) == cap(a.chunks[last]) {
		a.chunks = append(a.chunks, make([]T, 0, a.chunkSize))
		last++
	}
	a.chunks[last] = append(a.chunks[last], *new(T))
	a.length++
	return a.length - 1, &a.chunks[last][len(a.chunks[last])-1]
}

// At returns the stable pointer of the element at index i, or nil if
// i is out of range.
func (a *Arena[T]) At(i int) *T {
	if i < 0 || i >= a.length {
		return nil
	}
	return &a.chunks[i/a.chunkSize][i%a.chunkSize]
}

// Len returns the number of allocated elements.
func (a *Arena[T]) Len() int {
	return a.length
}

// Range calls fn for each element in allocation order until fn
// returns false.
func (a *Arena[T]) Range(fn func(i int, v *T) bool) {
	i := 0
	for _, chunk := range a.chunks {
		for j := range chunk {
			if !fn(i, &chunk[j]) {
				return
			}
			i++
		}
	}
}

// Reset drops every element. Pointers previously returned by Alloc or
// At are invalid afterwards.
func (a *Arena[T]) Reset() {
	a.chunks = nil
	a.length = 0
}
