package client

import (
	"context"
	"reflect"
	"runtime"
	"strings"

	"winerp/message"
)

// Handler serves one route. A returned error is sent to the caller as an error
// message; its code comes from message.CodeOf.
type Handler interface {
	Serve(ctx context.Context, payload message.Payload) (message.Payload, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload message.Payload) (message.Payload, error)

func (f HandlerFunc) Serve(ctx context.Context, payload message.Payload) (message.Payload, error) {
	return f(ctx, payload)
}

func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// handlerName derives a route name: a Name() method wins, then the function name.
// Closures and generic functions have no usable name and yield "".
func handlerName(h Handler) string {
	if n, ok := h.(interface{ Name() string }); ok {
		return n.Name()
	}
	f, ok := h.(HandlerFunc)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer())
	if fn == nil {
		return ""
	}
	name := fn.Name()
	if strings.Contains(name, "[") {
		// Generic instantiations carry their type arguments in the name.
		return ""
	}
	name = name[strings.LastIndex(name, ".")+1:]
	name = strings.TrimSuffix(name, "-fm")
	if name == "" || strings.Trim(strings.TrimPrefix(name, "func"), "0123456789") == "" {
		// Closures: pkg.F.func1, or pkg.F.func1.2 when nested.
		return ""
	}
	return name
}
