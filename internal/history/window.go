package history

import "github.com/KarmveerSingh18/prototype-4/internal/models"

// window is a fixed-capacity ring of snapshots. When full, push overwrites
// the oldest entry.
type window struct {
	buf   []models.ProcessSnapshot
	start int
	count int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]models.ProcessSnapshot, capacity)}
}

func (w *window) push(s models.ProcessSnapshot) {
	if w.count < len(w.buf) {
		w.buf[(w.start+w.count)%len(w.buf)] = s
		w.count++
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % len(w.buf)
}

func (w *window) len() int { return w.count }

func (w *window) latest() models.ProcessSnapshot {
	return w.buf[(w.start+w.count-1)%len(w.buf)]
}

// slice returns the samples oldest first.
func (w *window) slice() []models.ProcessSnapshot {
	out := make([]models.ProcessSnapshot, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
