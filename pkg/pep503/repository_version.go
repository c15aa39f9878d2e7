// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep503

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/net/html"

	"github.com/datawire/jab/pkg/htmlutil"
	"github.com/datawire/jab/pkg/pep440"
)

// SupportedRepositoryVersion is the newest PEP 629 API version that this client understands.
//
//nolint:gochecknoglobals // Would be 'const'.
var SupportedRepositoryVersion = pep440.MustParseVersion("1.0")

// RepositoryVersion returns the API version that a page declares with
//
//	<meta name="pypi:repository-version" content="1.0">
//
// Pages that don't declare a version are version 1.0 (PEP 629).
func RepositoryVersion(doc *html.Node) (*pep440.Version, error) {
	verStr, ok := htmlutil.MetaContent(doc, "pypi:repository-version")
	if !ok || verStr == "" {
		verStr = "1.0"
	}
	return pep440.ParseVersion(verStr)
}

// checkRepositoryVersion refuses pages from a newer major API version, and warns about pages from
// a newer minor API version.
func checkRepositoryVersion(ctx context.Context, doc *html.Node) error {
	version, err := RepositoryVersion(doc)
	if err != nil {
		return err
	}
	if version.Major() > SupportedRepositoryVersion.Major() {
		return fmt.Errorf("server's pypi:repository-version (%s) is not compatible with this client", version)
	}
	if version.Major() == SupportedRepositoryVersion.Major() &&
		version.Minor() > SupportedRepositoryVersion.Minor() {
		dlog.Warnf(ctx, "server's pypi:repository-version (%s) is newer than this client", version)
	}
	return nil
}
