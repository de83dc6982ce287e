package commlog

import (
	"log/slog"
	"time"
)

// Callbacks are optional observer hooks fired synchronously as events are
// recognized during a scan. A nil hook is skipped. A panicking hook is
// logged and isolated; it never aborts or reorders the rest of the scan.
type Callbacks struct {
	Connected    func(ts time.Time)
	Reconnected  func(ts time.Time)
	Disconnected func(s *Session)
	CounterLine  func(s *Session)
	Received     func(filename string, size int64)
	Transfered   func(filename string, size int64)
	Recovery     func(code string) // "" when the line carries no recovery code
	Iridium      func(s *Session)
	Ver          func(s *Session)
}

func fire(log *slog.Logger, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("callback failed", "callback", name, "panic", r)
		}
	}()
	fn()
}
