// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep503 implements a client for PEP 503 -- Simple Repository API, the index format
// served by PyPI and by the package indexes that a Pipfile's [[source]] entries point at.
//
// https://www.python.org/dev/peps/pep-0503/
package pep503

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/datawire/jab/pkg/htmlutil"
)

const PyPIBaseURL = "https://pypi.org/simple/"

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	// Limiter, if non-nil, is waited on before every request.
	Limiter *rate.Limiter
}

func (c *Client) fillDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = PyPIBaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/datawire/jab/pkg/pep503"
	}
}

type HTTPError struct {
	Status     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %s", e.Status)
}

func (c Client) get(ctx context.Context, requestURL string) (_ *url.URL, _ []byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("GET %q => %w", requestURL, err)
		}
	}()
	c.fillDefaults()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, nil, err
	}
	if err := resp.Body.Close(); err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode}
	}

	return resp.Request.URL, content, nil
}

type Link struct {
	Text      string
	HRef      string
	DataAttrs map[string]string
}

func (c Client) getHTML5Index(ctx context.Context, requestURL string) ([]Link, error) {
	location, content, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if err := checkRepositoryVersion(ctx, doc); err != nil {
		return nil, err
	}

	var links []Link
	if err := htmlutil.VisitHTML(doc, nil, func(node *html.Node) error {
		if !htmlutil.IsElement(node, "a") {
			return nil
		}
		link := Link{
			Text:      htmlutil.TextContent(node),
			DataAttrs: make(map[string]string),
		}
		for _, attr := range node.Attr {
			switch {
			case attr.Namespace == "" && attr.Key == "href":
				href, err := location.Parse(attr.Val)
				if err != nil {
					return err
				}
				link.HRef = href.String()
			case attr.Namespace == "" && strings.HasPrefix(attr.Key, "data-"):
				link.DataAttrs[attr.Key] = attr.Val
			}
		}
		links = append(links, link)
		return nil
	}); err != nil {
		return nil, err
	}

	return links, nil
}

//nolint:gochecknoglobals // Would be 'const'.
var reNormalize = regexp.MustCompile(`[-_.]+`)

// Normalize returns the PEP 503 normalized form of a project name: lowercase, with runs of "-",
// "_", and "." collapsed to a single "-".
func Normalize(name string) string {
	return strings.ToLower(reNormalize.ReplaceAllLiteralString(name, "-"))
}

// ValidName reports whether name only contains the characters that PEP 503 permits: "the only
// valid characters in a name are the ASCII alphabet, ASCII numbers, `.`, `-`, and `_`."
func ValidName(name string) error {
	if name == "" {
		return fmt.Errorf("empty project name")
	}
	for _, char := range name {
		if !(('a' <= char && char <= 'z') ||
			('A' <= char && char <= 'Z') ||
			('0' <= char && char <= '9') ||
			char == '.' ||
			char == '-' ||
			char == '_') {
			return fmt.Errorf("illegal character in project name: %q: %s",
				name, strconv.QuoteRuneToASCII(char))
		}
	}
	return nil
}

// ListPackageFiles returns the links on the project page for pkgname.
func (c Client) ListPackageFiles(ctx context.Context, pkgname string) ([]FileLink, error) {
	if err := ValidName(pkgname); err != nil {
		return nil, err
	}

	c.fillDefaults()
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	// PEP 503 project URLs end in a slash; asking for the slash-less form costs a redirect.
	u.Path = path.Join(u.Path, Normalize(pkgname)) + "/"
	rawLinks, err := c.getHTML5Index(ctx, u.String())
	if err != nil {
		return nil, err
	}
	links := make([]FileLink, 0, len(rawLinks))
	for _, link := range rawLinks {
		links = append(links, FileLink{Link: link})
	}
	return links, nil
}
