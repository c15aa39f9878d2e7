// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrAlreadyBuilt is returned by Provide and Supply once the harness has constructed its
// environment; the graph can't change after that.
var ErrAlreadyBuilt = errors.New("harness: environment already built")

// NoConstructorError is returned by Provide when an argument is not a function that could be
// used as a constructor.
type NoConstructorError struct {
	Arg    interface{}
	Reason string
}

func (e *NoConstructorError) Error() string {
	return fmt.Sprintf("provided argument '%v' (%T) is not a constructor function: %s",
		e.Arg, e.Arg, e.Reason)
}

// NoResultError is returned by Provide when a constructor doesn't produce a value that other
// constructors could depend on.
type NoResultError struct {
	Constructor reflect.Type
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("constructor '%v' does not produce a value: it must return T or (T, error)",
		e.Constructor)
}

// DuplicateProviderError is returned when two constructors (or supplied values) produce the same
// type.
type DuplicateProviderError struct {
	Type reflect.Type
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("type '%v' is already provided", e.Type)
}

// MissingDependencyError is returned by Build when a constructor parameter can't be satisfied by
// any provided type.
type MissingDependencyError struct {
	// Provider is the name of the provider whose parameter is missing.
	Provider string
	// Param is the 0-based position of the parameter.
	Param int
	Type  reflect.Type
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("can't build dependencies for %s: missing suitable argument for parameter %d [%v]",
		e.Provider, e.Param, e.Type)
}

// InvalidLifecycleMethodError is returned by Run when an object has a method with a lifecycle
// name (OnStart, Run, OnStop) but the wrong signature.  Such a method would otherwise be silently
// skipped, which is never what was intended.
type InvalidLifecycleMethodError struct {
	Provider string
	Method   string
	Got      reflect.Type
	Want     []string
}

func (e *InvalidLifecycleMethodError) Error() string {
	return fmt.Sprintf("%s.%s has signature %v; it must be one of: %v",
		e.Provider, e.Method, e.Got, e.Want)
}

// ConstructorError wraps an error returned by a constructor.
type ConstructorError struct {
	Provider string
	Err      error
}

func (e *ConstructorError) Error() string {
	return fmt.Sprintf("constructing %s: %v", e.Provider, e.Err)
}

func (e *ConstructorError) Unwrap() error {
	return e.Err
}

// LifecycleError wraps an error returned by an OnStart, Run, or OnStop method.
type LifecycleError struct {
	Provider string
	Method   string
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Provider, e.Method, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
