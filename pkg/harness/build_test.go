// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package harness_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/harness"
	"github.com/datawire/jab/pkg/toposort"
)

type (
	Config struct{ Addr string }
	DB     struct{ Cfg *Config }
	Cache  struct {
		Cfg *Config
		DB  *DB
	}
	Server struct {
		DB    *DB
		Cache *Cache
	}
)

func newConfig() *Config { return &Config{Addr: ":8080"} }

func newDB(cfg *Config) *DB { return &DB{Cfg: cfg} }

func newCache(cfg *Config, db *DB) *Cache { return &Cache{Cfg: cfg, DB: db} }

func newServer(db *DB, cache *Cache) (*Server, error) {
	return &Server{DB: db, Cache: cache}, nil
}

type Greeter interface{ Greet() string }

type english struct{}

func (english) Greet() string { return "hello" }

type french struct{}

func (french) Greet() string { return "bonjour" }

type Welcome struct{ Text string }

func newEnglish() english { return english{} }

func newFrench() french { return french{} }

func newWelcome(g Greeter) Welcome {
	return Welcome{Text: g.Greet()}
}

func TestProvideErrors(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		In      interface{}
		OutType interface{}
	}{
		"nil":          {nil, (*harness.NoConstructorError)(nil)},
		"not-func":     {42, (*harness.NoConstructorError)(nil)},
		"nil-func":     {(func() int)(nil), (*harness.NoConstructorError)(nil)},
		"variadic":     {func(...int) string { return "" }, (*harness.NoConstructorError)(nil)},
		"no-result":    {func() {}, (*harness.NoResultError)(nil)},
		"only-error":   {func() error { return nil }, (*harness.NoResultError)(nil)},
		"error-first":  {func() (error, int) { return nil, 0 }, (*harness.NoResultError)(nil)},
		"three-result": {func() (int, int, error) { return 0, 0, nil }, (*harness.NoResultError)(nil)},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			err := harness.New().Provide(tc.In)
			require.Error(t, err)
			target := reflect.New(reflect.TypeOf(tc.OutType))
			assert.True(t, errors.As(err, target.Interface()), "%T", err)
		})
	}
}

func TestProvideDuplicate(t *testing.T) {
	t.Parallel()
	h := harness.New()
	require.NoError(t, h.Provide(newConfig))
	err := h.Provide(func() *Config { return nil })
	var dup *harness.DuplicateProviderError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, reflect.TypeOf((*Config)(nil)), dup.Type)

	err = h.Supply(&Config{})
	assert.True(t, errors.As(err, &dup))
}

func TestBuildOrder(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	h := harness.New()
	// Provided in reverse; the harness sorts it out.
	require.NoError(t, h.Provide(newServer, newCache, newDB, newConfig))
	require.NoError(t, h.Build(ctx))
	assert.Equal(t, []string{
		"*harness_test.Config",
		"*harness_test.DB",
		"*harness_test.Cache",
		"*harness_test.Server",
	}, h.Order())

	var srv *Server
	require.NoError(t, h.Get(ctx, &srv))
	require.NotNil(t, srv)
	// Every consumer gets the same instance.
	assert.Same(t, srv.DB, srv.Cache.DB)
	assert.Same(t, srv.DB.Cfg, srv.Cache.Cfg)
	assert.Equal(t, ":8080", srv.Cache.Cfg.Addr)

	assert.ErrorIs(t, h.Provide(newEnglish), harness.ErrAlreadyBuilt)
	assert.ErrorIs(t, h.Supply(42), harness.ErrAlreadyBuilt)
}

func TestBuildOnce(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	calls := 0
	h := harness.New()
	require.NoError(t, h.Provide(func() *Config {
		calls++
		return &Config{}
	}))
	require.NoError(t, h.Build(ctx))
	require.NoError(t, h.Build(ctx))
	var cfg *Config
	require.NoError(t, h.Get(ctx, &cfg))
	assert.Equal(t, 1, calls)
}

func TestInterfaceParams(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	t.Run("first-provided", func(t *testing.T) {
		h := harness.New()
		require.NoError(t, h.Provide(newWelcome, newFrench, newEnglish))
		var w Welcome
		require.NoError(t, h.Get(ctx, &w))
		assert.Equal(t, "bonjour", w.Text)
	})
	t.Run("exact-wins", func(t *testing.T) {
		h := harness.New()
		require.NoError(t, h.Provide(newWelcome, newFrench, func() Greeter { return english{} }))
		var w Welcome
		require.NoError(t, h.Get(ctx, &w))
		assert.Equal(t, "hello", w.Text)
	})
	t.Run("get-interface", func(t *testing.T) {
		h := harness.New()
		require.NoError(t, h.Provide(newEnglish))
		var g Greeter
		require.NoError(t, h.Get(ctx, &g))
		assert.Equal(t, "hello", g.Greet())
	})
}

func TestSupply(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	h := harness.New()
	cfg := &Config{Addr: ":9090"}
	require.NoError(t, h.Provide(newDB))
	require.NoError(t, h.Supply(cfg))
	var db *DB
	require.NoError(t, h.Get(ctx, &db))
	assert.Same(t, cfg, db.Cfg)

	assert.Error(t, harness.New().Supply(nil))
}

func TestMissingDependency(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	h := harness.New()
	require.NoError(t, h.Provide(newConfig, newCache))
	err := h.Build(ctx)
	var missing *harness.MissingDependencyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "*harness_test.Cache", missing.Provider)
	assert.Equal(t, 1, missing.Param)
	assert.EqualError(t, err,
		"can't build dependencies for *harness_test.Cache: missing suitable argument for parameter 1 [*harness_test.DB]")
	assert.Nil(t, h.Order())

	// The failure sticks.
	assert.Equal(t, err, h.Build(ctx))

	var w Welcome
	err = harness.New().Get(ctx, &w)
	assert.True(t, errors.As(err, &missing))
}

type (
	Chicken   struct{}
	Egg       struct{}
	Narcissus struct{}
)

func TestCircularDependency(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	h := harness.New()
	require.NoError(t, h.Provide(
		func(*Egg) *Chicken { return &Chicken{} },
		func(*Chicken) *Egg { return &Egg{} },
		newConfig,
	))
	err := h.Build(ctx)
	var cycle *toposort.CircularDependencyError[string]
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, map[string][]string{
		"*harness_test.Chicken": {"*harness_test.Egg"},
		"*harness_test.Egg":     {"*harness_test.Chicken"},
	}, cycle.Data)

	h = harness.New()
	require.NoError(t, h.Provide(func(*Narcissus) *Narcissus { return nil }))
	assert.True(t, errors.As(h.Build(ctx), &cycle))
}

func TestConstructorError(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	errBoom := errors.New("boom")
	h := harness.New()
	require.NoError(t, h.Provide(newConfig, func(*Config) (*DB, error) {
		return nil, fmt.Errorf("dialing: %w", errBoom)
	}))
	err := h.Build(ctx)
	assert.ErrorIs(t, err, errBoom)
	var ctorErr *harness.ConstructorError
	require.True(t, errors.As(err, &ctorErr))
	assert.Equal(t, "*harness_test.DB", ctorErr.Provider)
	assert.EqualError(t, err, "constructing *harness_test.DB: dialing: boom")
}

func TestGetBadArgument(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	h := harness.New()
	require.NoError(t, h.Provide(newConfig))
	assert.Error(t, h.Get(ctx, Config{}))
	assert.Error(t, h.Get(ctx, (*Config)(nil)))
}
