// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package harness is a small dependency-injection container with a lifecycle.
//
// Constructors are registered with Provide, and plain values with Supply.  Build works out the
// order to call the constructors in from their parameter types, and calls each of them exactly
// once.  Run then takes everything that was built through three phases:
//
//	OnStart(ctx) error  // concurrently, before anything runs
//	Run(ctx) error      // concurrently; the first failure cancels the rest
//	OnStop(ctx) error   // one at a time, in reverse construction order; always
//
// An object takes part in a phase simply by having the method; there is nothing to register.
//
//	h := harness.New(harness.WithName("jab"))
//	if err := h.Provide(NewConfig, NewStore, NewServer); err != nil {
//		return err
//	}
//	return h.Run(ctx)
package harness
