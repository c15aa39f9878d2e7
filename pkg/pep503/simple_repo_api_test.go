// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep503_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/jab/pkg/pep440"
	"github.com/datawire/jab/pkg/pep503"
)

func newIndex(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const toposortPage = `<!DOCTYPE html>
<html>
  <head><meta name="pypi:repository-version" content="1.0"></head>
  <body>
    <a href="../../files/toposort-1.5.tar.gz#sha256=abc">toposort-1.5.tar.gz</a>
    <a href="../../files/toposort-1.6-py2.py3-none-any.whl" data-requires-python="&gt;=3.6">toposort-1.6-py2.py3-none-any.whl</a>
    <a href="../../files/toposort-1.6.tar.gz">toposort-1.6.tar.gz</a>
    <a href="../../files/toposort-1.7rc1.tar.gz">toposort-1.7rc1.tar.gz</a>
    <a href="../../files/toposort-1.8.tar.gz" data-yanked="broken">toposort-1.8.tar.gz</a>
    <a href="../../files/README.txt">README.txt</a>
  </body>
</html>
`

func TestListPackageFiles(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	srv := newIndex(t, map[string]string{"/simple/toposort/": toposortPage})

	client := pep503.Client{BaseURL: srv.URL + "/simple/"}
	links, err := client.ListPackageFiles(ctx, "TopoSort")
	require.NoError(t, err)
	require.Len(t, links, 6)
	assert.Equal(t, "toposort-1.5.tar.gz", links[0].Text)
	assert.Equal(t, srv.URL+"/files/toposort-1.5.tar.gz#sha256=abc", links[0].HRef)
	assert.False(t, links[0].Yanked())
	assert.True(t, links[4].Yanked())

	req, err := links[1].RequiresPython()
	require.NoError(t, err)
	assert.Equal(t, ">=3.6", req.String())
}

func TestVersions(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	srv := newIndex(t, map[string]string{"/simple/toposort/": toposortPage})

	client := pep503.Client{BaseURL: srv.URL + "/simple/"}
	versions, err := client.Versions(ctx, "toposort", nil)
	require.NoError(t, err)
	var strs []string
	for _, ver := range versions {
		strs = append(strs, ver.String())
	}
	assert.Equal(t, []string{"1.5", "1.6", "1.7rc1"}, strs)
}

const uvloopPage = `<!DOCTYPE html>
<html>
  <body>
    <a href="/files/uvloop-0.14.0.tar.gz" data-requires-python="&gt;=3.5">uvloop-0.14.0.tar.gz</a>
    <a href="/files/uvloop-0.17.0.tar.gz" data-requires-python="&gt;=3.7">uvloop-0.17.0.tar.gz</a>
    <a href="/files/uvloop-0.18.0.tar.gz" data-requires-python="&gt;=3.8.0">uvloop-0.18.0.tar.gz</a>
  </body>
</html>
`

func TestVersionsRequiresPython(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	srv := newIndex(t, map[string]string{"/simple/uvloop/": uvloopPage})
	client := pep503.Client{BaseURL: srv.URL + "/simple"}

	testcases := map[string][]string{
		"3.6":  {"0.14.0"},
		"3.7":  {"0.14.0", "0.17.0"},
		"3.12": {"0.14.0", "0.17.0", "0.18.0"},
	}
	for python, exp := range testcases {
		py := pep440.MustParseVersion(python)
		versions, err := client.Versions(ctx, "uvloop", &py)
		require.NoError(t, err)
		var strs []string
		for _, ver := range versions {
			strs = append(strs, ver.String())
		}
		assert.Equal(t, exp, strs, python)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	srv := newIndex(t, nil)

	client := pep503.Client{BaseURL: srv.URL + "/simple/"}
	_, err := client.ListPackageFiles(ctx, "no-such-package")
	var httpErr *pep503.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestRepositoryVersionTooNew(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	srv := newIndex(t, map[string]string{
		"/simple/uvloop/": `<html><head><meta name="pypi:repository-version" content="2.0"></head></html>`,
	})

	client := pep503.Client{BaseURL: srv.URL + "/simple/"}
	_, err := client.ListPackageFiles(ctx, "uvloop")
	assert.ErrorContains(t, err, "not compatible with this client")
}

func TestIllegalName(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	_, err := pep503.Client{}.ListPackageFiles(ctx, "foo/bar")
	assert.EqualError(t, err, `illegal character in project name: "foo/bar": '/'`)
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"typing_extensions": "typing-extensions",
		"Typing.Extensions": "typing-extensions",
		"pre--commit":       "pre-commit",
		"uvloop":            "uvloop",
	}
	for in, exp := range testcases {
		assert.Equal(t, exp, pep503.Normalize(in), in)
	}
}

func TestFileLinkVersion(t *testing.T) {
	t.Parallel()
	testcases := []struct {
		Project  string
		Filename string
		Out      string
		OutErr   bool
	}{
		{"typing-extensions", "typing_extensions-4.0.1-py3-none-any.whl", "4.0.1", false},
		{"uvloop", "uvloop-0.16.0-1-cp37-cp37m-manylinux2010_x86_64.whl", "0.16.0", false},
		{"typing-extensions", "typing_extensions-4.0.1.tar.gz", "4.0.1", false},
		{"python-dateutil", "python-dateutil-2.8.2.tar.gz", "2.8.2", false},
		{"pytest", "pytest-2.3.5-py2.7.egg", "2.3.5", false},
		{"pytest", "pytest-6.2.5.zip", "6.2.5", false},
		{"pytest", "other-6.2.5.zip", "", true},
		{"pytest", "pytest.exe", "", true},
		{"pytest", "pytest-1-2.whl", "", true},
	}
	for _, tc := range testcases {
		tc := tc
		t.Run(tc.Filename, func(t *testing.T) {
			t.Parallel()
			ver, err := pep503.FileLink{Link: pep503.Link{Text: tc.Filename}}.Version(tc.Project)
			if tc.OutErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, ver.Cmp(pep440.MustParseVersion(tc.Out)))
		})
	}
}
