package safe

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts fn on a new goroutine that recovers from panic,
// so that one bad task doesn't crash the entire program.
func Go(log *zap.Logger, name string, fn func()) {
	go Run(log, name, fn)
}

// Run calls fn on the current goroutine and recovers from panic.
// It reports whether fn returned normally.
func Run(log *zap.Logger, name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("panic recovered", zap.String("task", name), zap.Any("panic", r), zap.Stack("stack"))
			}
			ok = false
		}
	}()
	fn()
	return true
}
