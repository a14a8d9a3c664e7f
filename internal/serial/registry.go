package serial

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/roach88/rdsync/internal/rderr"
	"github.com/roach88/rdsync/internal/rdid"
)

// Context is passed to marshallers.
type Context struct {
	Serializers *Registry
}

// Marshaller reads and writes values of one Go type.
type Marshaller interface {
	// Name is the stable, cross-endpoint name of the type.
	Name() string
	// Type is the Go type handled.
	Type() reflect.Type
	Write(ctx *Context, buf *Buffer, v any) error
	Read(ctx *Context, buf *Buffer) (any, error)
}

// ReadError wraps malformed input.
type ReadError struct {
	What string
	Err  error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("serial: read %s: %v", e.What, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

func readError(what string, err error) error {
	return &ReadError{What: what, Err: err}
}

type registration struct {
	id rdid.ID
	m  Marshaller
}

// Registry resolves marshallers by Go type and by type id.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]registration
	byID   map[rdid.ID]registration
}

// NewRegistry creates a registry holding the built-in scalar marshallers.
func NewRegistry() *Registry {
	r := &Registry{
		byType: make(map[reflect.Type]registration),
		byID:   make(map[rdid.ID]registration),
	}
	for _, m := range builtins() {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// TypeID returns the type id for a marshaller name.
func TypeID(name string) rdid.ID {
	return rdid.FromName(name)
}

// Register adds m. Registering the same name for the same type again is a
// no-op; reusing a name or a type for something else is a TypeMismatch.
func (r *Registry) Register(m Marshaller) error {
	id := TypeID(m.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[id]; ok {
		if prev.m.Type() == m.Type() {
			return nil
		}
		return rderr.New(rderr.CodeTypeMismatch, "",
			"type name %q already registered for %s, not %s", m.Name(), prev.m.Type(), m.Type())
	}
	if prev, ok := r.byType[m.Type()]; ok {
		return rderr.New(rderr.CodeTypeMismatch, "",
			"type %s already registered as %q, not %q", m.Type(), prev.m.Name(), m.Name())
	}

	reg := registration{id: id, m: m}
	r.byID[id] = reg
	r.byType[m.Type()] = reg
	return nil
}

// Lookup returns the marshaller registered for t.
func (r *Registry) Lookup(t reflect.Type) (Marshaller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byType[t]
	return reg.m, ok
}

// Write encodes v as static type t.
// Pointers to registered types are written as nullable values.
func (r *Registry) Write(ctx *Context, buf *Buffer, t reflect.Type, v any) error {
	if m, ok := r.Lookup(t); ok {
		return m.Write(ctx, buf, v)
	}
	if t.Kind() == reflect.Pointer {
		if _, ok := r.Lookup(t.Elem()); ok {
			rv := reflect.ValueOf(v)
			if v == nil || rv.IsNil() {
				buf.WriteBool(false)
				return nil
			}
			buf.WriteBool(true)
			return r.Write(ctx, buf, t.Elem(), rv.Elem().Interface())
		}
	}
	if t.Kind() == reflect.Interface {
		return r.WritePolymorphic(ctx, buf, v)
	}
	return rderr.New(rderr.CodeTypeMismatch, "", "no marshaller registered for %s", t)
}

// Read decodes a value of static type t.
func (r *Registry) Read(ctx *Context, buf *Buffer, t reflect.Type) (any, error) {
	if m, ok := r.Lookup(t); ok {
		return m.Read(ctx, buf)
	}
	if t.Kind() == reflect.Pointer {
		if _, ok := r.Lookup(t.Elem()); ok {
			present, err := buf.ReadBool()
			if err != nil {
				return nil, err
			}
			if !present {
				return reflect.Zero(t).Interface(), nil
			}
			inner, err := r.Read(ctx, buf, t.Elem())
			if err != nil {
				return nil, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(reflect.ValueOf(inner))
			return p.Interface(), nil
		}
	}
	if t.Kind() == reflect.Interface {
		return r.ReadPolymorphic(ctx, buf)
	}
	return nil, rderr.New(rderr.CodeTypeMismatch, "", "no marshaller registered for %s", t)
}

// WritePolymorphic writes the dynamic type id of v followed by v.
// A nil v is written as the Null type id.
func (r *Registry) WritePolymorphic(ctx *Context, buf *Buffer, v any) error {
	if v == nil {
		buf.WriteID(rdid.Null)
		return nil
	}
	t := reflect.TypeOf(v)

	r.mu.RLock()
	reg, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return rderr.New(rderr.CodeTypeMismatch, "", "no marshaller registered for %s", t)
	}

	buf.WriteID(reg.id)
	return reg.m.Write(ctx, buf, v)
}

// ReadPolymorphic reads a value written by WritePolymorphic.
func (r *Registry) ReadPolymorphic(ctx *Context, buf *Buffer) (any, error) {
	id, err := buf.ReadID()
	if err != nil {
		return nil, err
	}
	if id.IsNull() {
		return nil, nil
	}

	r.mu.RLock()
	reg, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, rderr.New(rderr.CodeTypeMismatch, "", "unknown type id %s", id)
	}
	return reg.m.Read(ctx, buf)
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// WriteValue encodes v as its static type T.
func WriteValue[T any](ctx *Context, buf *Buffer, v T) error {
	return ctx.Serializers.Write(ctx, buf, TypeOf[T](), v)
}

// ReadValue decodes a value of static type T.
func ReadValue[T any](ctx *Context, buf *Buffer) (T, error) {
	var zero T
	v, err := ctx.Serializers.Read(ctx, buf, TypeOf[T]())
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, rderr.New(rderr.CodeTypeMismatch, "", "decoded %T, expected %s", v, TypeOf[T]())
	}
	return out, nil
}
