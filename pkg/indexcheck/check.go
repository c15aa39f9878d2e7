// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package indexcheck checks a Pipfile's requirements against the package indexes that its
// [[source]] entries name, reporting which version of each would be selected.
package indexcheck

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/pep440"
	"github.com/datawire/jab/pkg/pep503"
	"github.com/datawire/jab/pkg/pipfile"
)

// Result is what was found for one requirement.
type Result struct {
	Name       string `json:"name"`
	Section    string `json:"section"`
	Source     string `json:"source,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	// Selected is the version that would be installed.
	Selected string `json:"selected,omitempty"`
	// Latest is the newest version on the index, whether or not it is allowed.
	Latest    string `json:"latest,omitempty"`
	Available int    `json:"available"`
	// Skipped explains why a requirement wasn't looked up (because it comes from git, a path,
	// or a file rather than an index).
	Skipped string `json:"skipped,omitempty"`
	Err     error  `json:"-"`
	// Error is Err as a string, for serialization.
	Error string `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Err != nil
}

// NoMatchError is a Result.Err when the index has the project but no version satisfies the
// constraint.
type NoMatchError struct {
	Name       string
	Constraint string
	Available  int
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("none of the %d available versions of %q satisfy %q",
		e.Available, e.Name, e.Constraint)
}

// Checker queries package indexes.  The zero value is usable; it makes at most 4 requests at once
// and 10 per second.
type Checker struct {
	UserAgent   string
	Concurrency int
	RateLimit   rate.Limit
	Timeout     time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
	clients map[string]pep503.Client
}

const (
	defaultConcurrency = 4
	defaultRateLimit   = rate.Limit(10)
	defaultTimeout     = 30 * time.Second
)

func (c *Checker) client(src pipfile.Source) pep503.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiter == nil {
		limit := c.RateLimit
		if limit == 0 {
			limit = defaultRateLimit
		}
		c.limiter = rate.NewLimiter(limit, 1)
	}
	if c.clients == nil {
		c.clients = make(map[string]pep503.Client)
	}
	if client, ok := c.clients[src.Name]; ok {
		return client
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if !src.VerifySSL {
		transport, _ := http.DefaultTransport.(*http.Transport)
		transport = transport.Clone()
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // the Pipfile asked for it
		}
		httpClient.Transport = transport
	}
	client := pep503.Client{
		BaseURL:    src.URL,
		HTTPClient: httpClient,
		UserAgent:  c.UserAgent,
		Limiter:    c.limiter,
	}
	c.clients[src.Name] = client
	return client
}

// pythonVersion is the interpreter version that the Pipfile targets, or nil.
func pythonVersion(pf *pipfile.Pipfile) *pep440.Version {
	for _, str := range []string{pf.Requires.PythonFullVersion, pf.Requires.PythonVersion} {
		if str == "" {
			continue
		}
		if ver, err := pep440.ParseVersion(str); err == nil {
			return ver
		}
	}
	return nil
}

// Check looks up every requirement in [packages] (and [dev-packages], if dev is set).  Problems
// with individual requirements are reported in their Result; the returned error is only non-nil
// if the check as a whole couldn't be carried out.  Results are in the order of
// pipfile.Packages.Names(), runtime packages first.
func (c *Checker) Check(ctx context.Context, pf *pipfile.Pipfile, dev bool) ([]Result, error) {
	type job struct {
		idx    int
		req    *pipfile.Requirement
		spec   pep440.Specifier
		client pep503.Client
	}

	sections := []string{"packages"}
	if dev {
		sections = append(sections, "dev-packages")
	}
	var (
		results []Result
		jobs    []job
	)
	for _, section := range sections {
		pkgs := pf.Section(section == "dev-packages")
		for _, name := range pkgs.Names() {
			req := pkgs[name]
			result := Result{
				Name:       name,
				Section:    section,
				Constraint: req.Version,
			}
			switch {
			case req.Git != "":
				result.Skipped = "git"
			case req.Path != "":
				result.Skipped = "path"
			case req.File != "":
				result.Skipped = "file"
			}
			if result.Skipped != "" {
				results = append(results, result)
				continue
			}
			spec, err := req.Specifier()
			if err != nil {
				result.Err = err
				results = append(results, result)
				continue
			}
			src, err := pf.SourceFor(req)
			if err != nil {
				result.Err = err
				results = append(results, result)
				continue
			}
			result.Source = src.Name
			results = append(results, result)
			jobs = append(jobs, job{
				idx:    len(results) - 1,
				req:    req,
				spec:   spec,
				client: c.client(src),
			})
		}
	}

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	python := pythonVersion(pf)
	allowPre := pf.Pipenv.AllowPrereleases

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for _, j := range jobs {
		j := j
		grp.Go(results[j.idx].Section+"/"+j.req.Name, func(ctx context.Context) error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			result := &results[j.idx]
			versions, err := j.client.Versions(ctx, j.req.Name, python)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result.Err = err
				return nil
			}
			result.Available = len(versions)
			if len(versions) > 0 {
				result.Latest = versions[len(versions)-1].String()
			}
			if sel := j.spec.Select(versions, allowPre); sel != nil {
				result.Selected = sel.String()
			} else {
				result.Err = &NoMatchError{
					Name:       j.req.Name,
					Constraint: j.req.Version,
					Available:  len(versions),
				}
			}
			dlog.Debugf(ctx, "indexcheck: %s: %d versions, selected %q", j.req.Name, len(versions), result.Selected)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
		}
	}
	return results, nil
}
