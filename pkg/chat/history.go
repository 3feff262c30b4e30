package chat

import (
	"sync"

	"github.com/sashabaranov/go-openai"
)

// DefaultMaxHistory is the default number of turns kept in a session
const DefaultMaxHistory = 100

// History is an ordered, bounded conversation. When it grows past its
// limit the oldest turns are dropped; a leading system message is kept.
type History struct {
	messages []openai.ChatCompletionMessage
	maxSize  int
	mu       sync.RWMutex
}

// NewHistory creates a history holding at most maxSize turns; zero or
// negative means unbounded
func NewHistory(maxSize int) *History {
	return &History{maxSize: maxSize}
}

// Add appends a turn
func (h *History) Add(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, openai.ChatCompletionMessage{Role: role, Content: content})
	h.trim()
}

func (h *History) trim() {
	if h.maxSize <= 0 || len(h.messages) <= h.maxSize {
		return
	}

	if h.messages[0].Role == openai.ChatMessageRoleSystem && h.maxSize > 1 {
		keep := h.messages[len(h.messages)-(h.maxSize-1):]
		h.messages = append([]openai.ChatCompletionMessage{h.messages[0]}, keep...)
		return
	}

	h.messages = append([]openai.ChatCompletionMessage(nil), h.messages[len(h.messages)-h.maxSize:]...)
}

// HasRole reports whether any turn has the given role
func (h *History) HasRole(role string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, msg := range h.messages {
		if msg.Role == role {
			return true
		}
	}
	return false
}

// PopIf removes the last turn when it has the given role
func (h *History) PopIf(role string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) == 0 || h.messages[len(h.messages)-1].Role != role {
		return false
	}
	h.messages = h.messages[:len(h.messages)-1]
	return true
}

// Messages returns a copy of the turns in order
func (h *History) Messages() []openai.ChatCompletionMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]openai.ChatCompletionMessage{}, h.messages...)
}

// Len returns the number of turns
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes every turn
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
