// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/toposort"
)

// Build resolves every constructor's parameters, and then calls the constructors in dependency
// order.  It only does the work once; later calls return the result of the first.
//
// A parameter that no provider can satisfy is a *MissingDependencyError, and a cycle among the
// providers is a *toposort.CircularDependencyError[string].  An error returned by a constructor is
// wrapped in a *ConstructorError.
func (h *Harness) Build(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.built {
		return h.buildErr
	}
	h.built = true
	h.buildErr = h.build(ctx)
	return h.buildErr
}

// match finds the provider for a parameter of type typ.  An exact match always wins; otherwise an
// interface type is satisfied by the first provider that implements it.  The provider named by
// skip is never matched.
func (h *Harness) match(typ reflect.Type, skip *provider) *provider {
	if p, ok := h.byType[typ]; ok && p != skip {
		return p
	}
	if typ.Kind() != reflect.Interface {
		return nil
	}
	for _, p := range h.providers {
		if p != skip && p.out.Implements(typ) {
			return p
		}
	}
	return nil
}

func (h *Harness) resolve() (map[string][]*provider, error) {
	args := make(map[string][]*provider, len(h.providers))
	for _, p := range h.providers {
		args[p.name] = make([]*provider, 0, len(p.params))
		for i, param := range p.params {
			dep := h.match(param, p)
			if dep == nil {
				if h.match(param, nil) == p {
					return nil, &toposort.CircularDependencyError[string]{
						Data: map[string][]string{p.name: {p.name}},
					}
				}
				return nil, &MissingDependencyError{Provider: p.name, Param: i, Type: param}
			}
			args[p.name] = append(args[p.name], dep)
		}
	}
	return args, nil
}

func (h *Harness) build(ctx context.Context) error {
	args, err := h.resolve()
	if err != nil {
		return err
	}

	graph := make(map[string][]string, len(args))
	for name, deps := range args {
		graph[name] = make([]string, 0, len(deps))
		for _, dep := range deps {
			graph[name] = append(graph[name], dep.name)
		}
	}
	order, err := toposort.Flatten(graph)
	if err != nil {
		return err
	}

	byName := make(map[string]*provider, len(h.providers))
	for _, p := range h.providers {
		byName[p.name] = p
	}

	env := make(map[string]reflect.Value, len(order))
	for _, name := range order {
		p := byName[name]
		if p.supplied.IsValid() {
			env[name] = p.supplied
			continue
		}
		in := make([]reflect.Value, 0, len(args[name]))
		for i, dep := range args[name] {
			val := env[dep.name]
			// Interface parameters want the value converted to the interface type.
			if val.Type() != p.params[i] {
				val = val.Convert(p.params[i])
			}
			in = append(in, val)
		}
		dlog.Debugf(ctx, "%s: constructing %s", h.name, name)
		out := p.fn.Call(in)
		if p.hasErr && !out[1].IsNil() {
			err, _ := out[1].Interface().(error)
			return &ConstructorError{Provider: name, Err: err}
		}
		env[name] = out[0]
	}

	h.order = order
	h.env = env
	return nil
}

// Get builds the harness if it hasn't been built yet, and then stores the constructed value of
// the type that ptr points to in to *ptr.  Matching follows the same rules as constructor
// parameters.
func (h *Harness) Get(ctx context.Context, ptr interface{}) error {
	if err := h.Build(ctx); err != nil {
		return err
	}
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("harness.Get: argument must be a non-nil pointer, got %T", ptr)
	}
	typ := rv.Type().Elem()

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.match(typ, nil)
	if p == nil {
		return &MissingDependencyError{Provider: "Get", Param: 0, Type: typ}
	}
	rv.Elem().Set(h.env[p.name])
	return nil
}

// objects returns the constructed values in construction order.
func (h *Harness) objects() ([]namedObject, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.built {
		return nil, errors.New("harness: not built")
	}
	if h.buildErr != nil {
		return nil, h.buildErr
	}
	ret := make([]namedObject, 0, len(h.order))
	for _, name := range h.order {
		val := h.env[name]
		if !val.IsValid() || !val.CanInterface() {
			continue
		}
		obj := val.Interface()
		if obj == nil {
			continue
		}
		ret = append(ret, namedObject{name: name, obj: obj})
	}
	return ret, nil
}

type namedObject struct {
	name string
	obj  interface{}
}
