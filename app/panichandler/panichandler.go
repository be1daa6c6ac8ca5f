package panichandler

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/buildgovernor/governor/app/paniclogger"
)

// PanicHandler recovers a panic with no context label (backward compatibility).
// Usage: defer panichandler.PanicHandler()
func PanicHandler() {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()

		paniclogger.LogPanic("unknown context", r, string(stackTrace))

		slog.Error("caught panic",
			slog.Any("error", r),
			slog.String("stack", string(stackTrace)),
		)
	}
}

// Recover recovers a panic and logs it with a stack trace.
// Usage: defer panichandler.Recover("context description")
func Recover(context string) {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()

		paniclogger.LogPanic(context, r, string(stackTrace))

		slog.Error("caught panic",
			slog.String("context", context),
			slog.Any("error", r),
			slog.String("stack", string(stackTrace)),
		)
	}
}

// RecoverWithCallback recovers a panic and runs a callback afterward.
// Usage: defer panichandler.RecoverWithCallback("context", func() { ... })
func RecoverWithCallback(context string, callback func()) {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()

		paniclogger.LogPanic(context, r, string(stackTrace))

		slog.Error("caught panic",
			slog.String("context", context),
			slog.Any("error", r),
			slog.String("stack", string(stackTrace)),
		)
		if callback != nil {
			callback()
		}
	}
}

// RecoverWithData recovers a panic and logs it with extra structured fields.
// Usage: defer panichandler.RecoverWithData("context", map[string]any{"key": "value"})
func RecoverWithData(context string, data map[string]any) {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()

		paniclogger.LogPanic(context, r, string(stackTrace))

		attrs := []any{
			slog.String("context", context),
			slog.Any("error", r),
			slog.String("stack", string(stackTrace)),
		}

		for key, value := range data {
			attrs = append(attrs, slog.Any(key, value))
		}

		slog.Error("caught panic", attrs...)
	}
}

// SafeGo starts a goroutine with panic protection. A panic inside fn is
// recovered and logged; it never brings down the process.
// Usage: panichandler.SafeGo("goroutine context", func() { ... })
func SafeGo(context string, fn func()) {
	go func() {
		defer recoverGoroutine(fmt.Sprintf("goroutine: %s", context), nil)
		fn()
	}()
}

// SafeGoWithCallback starts a goroutine with panic protection and a callback.
// The callback runs ONLY if a panic occurred (the process keeps running).
// Usage: panichandler.SafeGoWithCallback("goroutine context", func() { ... }, func() { ... })
func SafeGoWithCallback(context string, fn func(), callback func()) {
	go func() {
		defer recoverGoroutine(fmt.Sprintf("goroutine: %s", context), callback)
		fn()
	}()
}

// SafeGoWithData starts a goroutine with panic protection and extra log fields.
// Usage: panichandler.SafeGoWithData("goroutine context", map[string]any{"key": "value"}, func() { ... })
func SafeGoWithData(context string, data map[string]any, fn func()) {
	go func() {
		defer recoverGoroutineWithData(fmt.Sprintf("goroutine: %s", context), data, nil)
		fn()
	}()
}

// SafeGoWithDataAndCallback starts a goroutine with panic protection, extra log
// fields, and a callback run only on panic.
// Usage: panichandler.SafeGoWithDataAndCallback("goroutine context", map[string]any{"key": "value"}, func() { ... }, func() { ... })
func SafeGoWithDataAndCallback(context string, data map[string]any, fn func(), callback func()) {
	go func() {
		defer recoverGoroutineWithData(fmt.Sprintf("goroutine: %s", context), data, callback)
		fn()
	}()
}

// recoverGoroutine is the internal panic recovery used by SafeGo variants
// without extra data. The panic never propagates past this goroutine.
func recoverGoroutine(context string, callback func()) {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()

		paniclogger.LogPanic(context, r, string(stackTrace))

		slog.Error("goroutine panic caught (app continues running)",
			slog.String("context", context),
			slog.Any("error", r),
			slog.String("stack", string(stackTrace)),
		)

		if callback != nil {
			// Protect against a panic inside the callback itself.
			defer func() {
				if r2 := recover(); r2 != nil {
					slog.Error("panic in goroutine panic callback",
						slog.String("original_context", context),
						slog.Any("callback_error", r2),
					)
				}
			}()
			callback()
		}
	}
}

// recoverGoroutineWithData is the internal panic recovery used by SafeGo
// variants that carry extra structured log fields.
func recoverGoroutineWithData(context string, data map[string]any, callback func()) {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()

		paniclogger.LogPanic(context, r, string(stackTrace))

		attrs := []any{
			slog.String("context", context),
			slog.Any("error", r),
			slog.String("stack", string(stackTrace)),
		}

		for key, value := range data {
			attrs = append(attrs, slog.Any(key, value))
		}

		slog.Error("goroutine panic caught with data (app continues running)", attrs...)

		if callback != nil {
			defer func() {
				if r2 := recover(); r2 != nil {
					slog.Error("panic in goroutine panic callback",
						slog.String("original_context", context),
						slog.Any("callback_error", r2),
					)
				}
			}()
			callback()
		}
	}
}
