// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package htmlutil has small helpers for walking parsed golang.org/x/net/html trees.
package htmlutil

import (
	"strings"

	"golang.org/x/net/html"
)

// VisitHTML walks the tree rooted at node depth-first, calling before on the way down and after
// on the way up.  Either callback may be nil.  The walk stops at the first error.
func VisitHTML(node *html.Node, before, after func(*html.Node) error) error {
	if before != nil {
		if err := before(node); err != nil {
			return err
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := VisitHTML(child, before, after); err != nil {
			return err
		}
	}
	if after != nil {
		return after(node)
	}
	return nil
}

// GetAttr returns the value of the attribute with the given namespace and name.
func GetAttr(node *html.Node, namespace, name string) (val string, ok bool) {
	if node == nil {
		return "", false
	}
	for _, attr := range node.Attr {
		if attr.Namespace == namespace && attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

// IsElement reports whether node is an element with the given tag name.
func IsElement(node *html.Node, tag string) bool {
	return node != nil && node.Type == html.ElementNode && node.Data == tag
}

// TextContent concatenates all of the text nodes under node.
func TextContent(node *html.Node) string {
	var ret strings.Builder
	_ = VisitHTML(node, func(child *html.Node) error {
		if child.Type == html.TextNode {
			ret.WriteString(child.Data)
		}
		return nil
	}, nil)
	return ret.String()
}

// MetaContent returns the content of the first <meta name=NAME content=...> element under doc.
func MetaContent(doc *html.Node, name string) (string, bool) {
	var content string
	var found bool
	_ = VisitHTML(doc, func(node *html.Node) error {
		if found || !IsElement(node, "meta") {
			return nil
		}
		if metaName, _ := GetAttr(node, "", "name"); metaName != name {
			return nil
		}
		content, found = GetAttr(node, "", "content")
		return nil
	}, nil)
	return content, found
}
