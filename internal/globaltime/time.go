package globaltime

import (
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Freeze pins Now to t until the returned func is called.
func Freeze(t time.Time) (restore func()) {
	mu.Lock()
	prev := nowFunc
	nowFunc = func() time.Time { return t }
	mu.Unlock()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		nowFunc = prev
	}
}

// DayKey names the UTC calendar day containing t, e.g. "2026-03-10".
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}
