// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

//nolint:gochecknoglobals // Would be 'const'.
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Harness takes care of wiring dependencies in to constructors, which grows tedious quickly.
// Given a set of constructors, the Harness works out the order to call them in, passes each one
// the values it needs, and then runs the lifecycle of everything it built.
//
// A Harness is safe for concurrent use, but it only ever builds its environment once.
type Harness struct {
	name        string
	signals     bool
	stopTimeout time.Duration

	mu        sync.Mutex
	providers []*provider
	byType    map[reflect.Type]*provider
	names     map[string]struct{}

	built    bool
	buildErr error
	order    []string
	env      map[string]reflect.Value
}

type provider struct {
	name string
	out  reflect.Type

	// fn is the constructor; it is the zero Value for supplied values.
	fn     reflect.Value
	params []reflect.Type
	hasErr bool

	// supplied is the value passed to Supply.
	supplied reflect.Value
}

// Option configures a Harness; see New.
type Option func(*Harness)

// WithName sets the name used for the harness in log messages.
func WithName(name string) Option {
	return func(h *Harness) {
		h.name = name
	}
}

// WithSignalHandling controls whether SIGINT and SIGTERM interrupt Run.  It is on by default.
func WithSignalHandling(enable bool) Option {
	return func(h *Harness) {
		h.signals = enable
	}
}

// WithStopTimeout bounds the context passed to OnStop methods.  Zero (the default) means no
// bound.
func WithStopTimeout(d time.Duration) Option {
	return func(h *Harness) {
		h.stopTimeout = d
	}
}

// New returns an empty Harness named "harness", with signal handling on and no stop timeout,
// adjusted by opts.
func New(opts ...Option) *Harness {
	h := &Harness{
		name:    "harness",
		signals: true,
		byType:  make(map[reflect.Type]*provider),
		names:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Provide registers constructors.  A constructor is a function of the form
//
//	func(dep1 A, dep2 B, ...) T
//	func(dep1 A, dep2 B, ...) (T, error)
//
// Each parameter is satisfied by the provider of that exact type or, for interface parameters,
// by the first provider (in the order they were provided) whose type implements the interface.
// Dependencies are resolved when the harness is built, so constructors may be provided in any
// order.
func (h *Harness) Provide(ctors ...interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.built {
		return ErrAlreadyBuilt
	}
	for _, ctor := range ctors {
		p, err := newProvider(ctor)
		if err != nil {
			return err
		}
		if err := h.register(p); err != nil {
			return err
		}
	}
	return nil
}

// Supply registers already-constructed values, which other constructors may then depend on.  A
// supplied value is provided under its dynamic type.
func (h *Harness) Supply(values ...interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.built {
		return ErrAlreadyBuilt
	}
	for _, val := range values {
		if val == nil {
			return &NoConstructorError{Arg: val, Reason: "cannot supply an untyped nil"}
		}
		rv := reflect.ValueOf(val)
		if err := h.register(&provider{out: rv.Type(), supplied: rv}); err != nil {
			return err
		}
	}
	return nil
}

func newProvider(ctor interface{}) (*provider, error) {
	if ctor == nil {
		return nil, &NoConstructorError{Arg: ctor, Reason: "it is nil"}
	}
	fn := reflect.ValueOf(ctor)
	fnType := fn.Type()
	switch {
	case fnType.Kind() != reflect.Func:
		return nil, &NoConstructorError{Arg: ctor, Reason: "it is not a function"}
	case fn.IsNil():
		return nil, &NoConstructorError{Arg: ctor, Reason: "it is a nil function"}
	case fnType.IsVariadic():
		return nil, &NoConstructorError{Arg: ctor, Reason: "variadic constructors are not supported"}
	}

	p := &provider{fn: fn}
	switch {
	case fnType.NumOut() == 1 && fnType.Out(0) != errorType:
	case fnType.NumOut() == 2 && fnType.Out(0) != errorType && fnType.Out(1) == errorType:
		p.hasErr = true
	default:
		return nil, &NoResultError{Constructor: fnType}
	}
	p.out = fnType.Out(0)
	for i := 0; i < fnType.NumIn(); i++ {
		p.params = append(p.params, fnType.In(i))
	}
	return p, nil
}

// register must be called with h.mu held.
func (h *Harness) register(p *provider) error {
	if _, dup := h.byType[p.out]; dup {
		return &DuplicateProviderError{Type: p.out}
	}
	p.name = p.out.String()
	// Distinct types can share a String() if they come from same-named packages.
	for i := 2; ; i++ {
		if _, taken := h.names[p.name]; !taken {
			break
		}
		p.name = fmt.Sprintf("%s#%d", p.out.String(), i)
	}
	h.names[p.name] = struct{}{}
	h.byType[p.out] = p
	h.providers = append(h.providers, p)
	return nil
}

// Order returns the names of the providers in construction order, or nil if the harness has not
// been built successfully.
func (h *Harness) Order() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.built || h.buildErr != nil {
		return nil
	}
	return append([]string(nil), h.order...)
}
