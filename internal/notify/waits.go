package notify

import "sync"

// ScreenshotWaits is the keyed waiting registry for payment screenshots.
// One buyer has at most one pending wait; arming a new one replaces the old,
// and a matched wait is consumed exactly once.
type ScreenshotWaits struct {
	mu     sync.Mutex
	byChat map[int64]string
}

// NewScreenshotWaits builds an empty registry.
func NewScreenshotWaits() *ScreenshotWaits {
	return &ScreenshotWaits{byChat: make(map[int64]string)}
}

// Expect registers that the next photo from chatID belongs to groupID.
func (w *ScreenshotWaits) Expect(chatID int64, groupID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byChat[chatID] = groupID
}

// Consume resolves and removes the pending wait for chatID. The second
// return is false when nothing was expected from this buyer.
func (w *ScreenshotWaits) Consume(chatID int64) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	groupID, ok := w.byChat[chatID]
	if ok {
		delete(w.byChat, chatID)
	}
	return groupID, ok
}

// Waiting reports whether a screenshot is expected from chatID without
// consuming the wait.
func (w *ScreenshotWaits) Waiting(chatID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.byChat[chatID]
	return ok
}

// Cancel drops the pending wait for chatID, if any.
func (w *ScreenshotWaits) Cancel(chatID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.byChat, chatID)
}

// Len reports how many buyers are currently awaited.
func (w *ScreenshotWaits) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byChat)
}
