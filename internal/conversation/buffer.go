package conversation

import "sync"

// TextBuffer is a goroutine-safe InputBuffer.
type TextBuffer struct {
	mu    sync.Mutex
	value string
}

func (b *TextBuffer) Clear() { b.SetValue("") }

func (b *TextBuffer) SetValue(value string) {
	b.mu.Lock()
	b.value = value
	b.mu.Unlock()
}

func (b *TextBuffer) Value() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}
