// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/datawire/dlib/dcontext"
	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
)

// Starter is implemented by objects that need to do something before anything Runs.  All
// OnStart methods are called concurrently.
type Starter interface {
	OnStart(ctx context.Context) error
}

// Runner is implemented by objects that do the actual work.  All Run methods are called
// concurrently, and the Context is canceled once any of them returns an error or the process is
// interrupted.
type Runner interface {
	Run(ctx context.Context) error
}

// Stopper is implemented by objects that need to clean up.  OnStop methods are called one at a
// time, in reverse construction order, with a Context that is not canceled by interruption.
type Stopper interface {
	OnStop(ctx context.Context) error
}

type (
	plainStopper     interface{ OnStop() }
	plainStopperErr  interface{ OnStop() error }
	lifecycleMethods struct {
		start func(context.Context) error
		run   func(context.Context) error
		stop  func(context.Context) error
	}
)

//nolint:gochecknoglobals // Would be 'const'.
var wantSignatures = map[string][]string{
	"OnStart": {"func(context.Context) error"},
	"Run":     {"func(context.Context) error"},
	"OnStop":  {"func(context.Context) error", "func() error", "func()"},
}

// lifecycleOf inspects obj for lifecycle methods.  A method with a lifecycle name but the wrong
// signature is an error rather than being ignored.
func lifecycleOf(name string, obj interface{}) (lifecycleMethods, error) {
	var ret lifecycleMethods
	typ := reflect.TypeOf(obj)
	for _, method := range []string{"OnStart", "Run", "OnStop"} {
		m, ok := typ.MethodByName(method)
		if !ok {
			continue
		}
		var fn func(context.Context) error
		switch method {
		case "OnStart":
			if s, ok := obj.(Starter); ok {
				fn = s.OnStart
			}
		case "Run":
			if r, ok := obj.(Runner); ok {
				fn = r.Run
			}
		case "OnStop":
			switch s := obj.(type) {
			case Stopper:
				fn = s.OnStop
			case plainStopperErr:
				fn = func(context.Context) error { return s.OnStop() }
			case plainStopper:
				fn = func(context.Context) error { s.OnStop(); return nil }
			}
		}
		if fn == nil {
			return ret, &InvalidLifecycleMethodError{
				Provider: name,
				Method:   method,
				Got:      methodType(m.Type),
				Want:     wantSignatures[method],
			}
		}
		switch method {
		case "OnStart":
			ret.start = fn
		case "Run":
			ret.run = fn
		case "OnStop":
			ret.stop = fn
		}
	}
	return ret, nil
}

// methodType drops the receiver from a method's function type, so that it reads the way it was
// written.
func methodType(fnType reflect.Type) reflect.Type {
	in := make([]reflect.Type, 0, fnType.NumIn()-1)
	for i := 1; i < fnType.NumIn(); i++ {
		in = append(in, fnType.In(i))
	}
	out := make([]reflect.Type, 0, fnType.NumOut())
	for i := 0; i < fnType.NumOut(); i++ {
		out = append(out, fnType.Out(i))
	}
	return reflect.FuncOf(in, out, fnType.IsVariadic())
}

type lifecycleCall struct {
	name string
	fn   func(context.Context) error
}

// Run builds the harness (if needed) and then runs everything it built through its lifecycle:
//
//  1. Every OnStart is called concurrently.
//  2. If no OnStart failed and the harness wasn't interrupted, every Run is called concurrently.
//     The first Run to fail cancels the others.
//  3. Every OnStop is called in reverse construction order, whatever happened before.
//
// The returned error is a derror.MultiError of everything that failed.  Being interrupted (by a
// signal or by ctx being canceled) is not itself an error.
func (h *Harness) Run(ctx context.Context) error {
	if err := h.Build(ctx); err != nil {
		return err
	}
	objs, err := h.objects()
	if err != nil {
		return err
	}
	var starts, runs, stops []lifecycleCall
	for _, o := range objs {
		methods, err := lifecycleOf(o.name, o.obj)
		if err != nil {
			return err
		}
		if methods.start != nil {
			starts = append(starts, lifecycleCall{name: o.name, fn: methods.start})
		}
		if methods.run != nil {
			runs = append(runs, lifecycleCall{name: o.name, fn: methods.run})
		}
		if methods.stop != nil {
			stops = append(stops, lifecycleCall{name: o.name, fn: methods.stop})
		}
	}

	ctx = dlog.WithField(ctx, "harness", h.name)
	ctx = dlog.WithField(ctx, "run_id", uuid.NewString())

	var errs derror.MultiError
	dlog.Debugf(ctx, "starting %d components", len(starts))
	interrupted, startErrs := h.concurrently(ctx, "OnStart", starts)
	errs = append(errs, startErrs...)
	if !interrupted && len(errs) == 0 {
		dlog.Debugf(ctx, "running %d components", len(runs))
		_, runErrs := h.concurrently(ctx, "Run", runs)
		errs = append(errs, runErrs...)
	} else if len(errs) == 0 {
		dlog.Infof(ctx, "interrupted during startup; stopping")
	}
	errs = append(errs, h.stop(ctx, stops)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// concurrently calls every fn in its own goroutine and waits for them all.  The first error
// cancels the rest; the errors they return as a result of being canceled aren't reported.  The
// calls were interrupted if their context was canceled (by a signal, or by ctx) without any of
// them failing.
func (h *Harness) concurrently(ctx context.Context, method string, calls []lifecycleCall) (bool, derror.MultiError) {
	if len(calls) == 0 {
		return ctx.Err() != nil, nil
	}
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: h.signals,
		DisableLogging:       true,
	})

	var (
		mu          sync.Mutex
		errs        derror.MultiError
		interrupted bool
	)
	for _, call := range calls {
		call := call
		grp.Go(call.name, func(ctx context.Context) error {
			err := call.fn(ctx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
				interrupted = true
			case err != nil:
				errs = append(errs, &LifecycleError{Provider: call.name, Method: method, Err: err})
			}
			return err
		})
	}
	waitErr := grp.Wait()

	if len(errs) > 0 {
		return false, errs
	}
	if waitErr != nil || ctx.Err() != nil {
		dlog.Debugf(ctx, "%s interrupted: %v", method, waitErr)
		interrupted = true
	}
	return interrupted, nil
}

func (h *Harness) stop(ctx context.Context, stops []lifecycleCall) derror.MultiError {
	if len(stops) == 0 {
		return nil
	}
	ctx = dcontext.WithoutCancel(ctx)
	if h.stopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.stopTimeout)
		defer cancel()
	}
	dlog.Debugf(ctx, "stopping %d components", len(stops))
	var errs derror.MultiError
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i].fn(ctx); err != nil {
			dlog.Errorf(ctx, "%s.OnStop: %v", stops[i].name, err)
			errs = append(errs, &LifecycleError{Provider: stops[i].name, Method: "OnStop", Err: err})
		}
	}
	return errs
}
