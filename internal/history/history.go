package history

// History is a linear undo/redo stack. Past runs oldest to newest, future runs
// from the next redo to the latest. It is not safe for concurrent use.
type History[T comparable] struct {
	past    []T
	present T
	future  []T
}

// Snapshot is a copy of the three history components.
type Snapshot[T comparable] struct {
	Past    []T `json:"past"`
	Present T   `json:"present"`
	Future  []T `json:"future"`
}

func New[T comparable](initial T) *History[T] {
	return &History[T]{present: initial}
}

func (h *History[T]) Present() T {
	return h.present
}

func (h *History[T]) CanUndo() bool {
	return len(h.past) > 0
}

func (h *History[T]) CanRedo() bool {
	return len(h.future) > 0
}

// Push records v as the new present. Pushing a value equal to the current
// present leaves the history untouched and reports false.
func (h *History[T]) Push(v T) bool {
	if v == h.present {
		return false
	}
	h.past = append(h.past, h.present)
	h.present = v
	h.future = nil
	return true
}

func (h *History[T]) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	last := len(h.past) - 1
	previous := h.past[last]

	future := make([]T, 0, len(h.future)+1)
	future = append(future, h.present)
	future = append(future, h.future...)

	h.past = h.past[:last:last]
	h.present = previous
	h.future = future
	return true
}

func (h *History[T]) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	next := h.future[0]

	h.past = append(h.past, h.present)
	h.present = next
	h.future = append([]T(nil), h.future[1:]...)
	return true
}

// Reset drops all history and starts over from v.
func (h *History[T]) Reset(v T) {
	h.past = nil
	h.present = v
	h.future = nil
}

func (h *History[T]) Snapshot() Snapshot[T] {
	return Snapshot[T]{
		Past:    append([]T{}, h.past...),
		Present: h.present,
		Future:  append([]T{}, h.future...),
	}
}
