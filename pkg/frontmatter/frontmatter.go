// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package frontmatter parses and serializes the YAML-style frontmatter
// that fences every OMG node file, and provides the atomic
// write-temp-then-rename primitive every component uses to persist files.
package frontmatter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	omgerrors "github.com/openclaw/omg/internal/errors"
	"github.com/openclaw/omg/pkg/node"
)

const fence = "---"

// Document is the parsed form of a node file: frontmatter plus body.
type Document struct {
	Node node.Node
	Body string
}

// Parse splits raw file content into frontmatter and body and unmarshals
// the frontmatter into a Node. Returns an error for structurally
// malformed input (missing or unterminated fences) and for frontmatter that
// is not valid YAML; field-level problems are the caller's concern (see
// pkg/observer for diagnostic-producing parsers).
func Parse(content []byte) (*Document, error) {
	s := string(content)
	if !strings.HasPrefix(s, fence) {
		return nil, &omgerrors.ParseError{Reason: "missing-frontmatter", Detail: "content does not start with ---"}
	}
	rest := s[len(fence):]
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return nil, &omgerrors.ParseError{Reason: "unterminated-frontmatter", Detail: "no closing --- fence"}
	}
	fmBlock := rest[:end]
	after := rest[end+len("\n"+fence):]
	after = strings.TrimPrefix(after, "\n")

	var n node.Node
	if err := yaml.Unmarshal([]byte(fmBlock), &n); err != nil {
		return nil, &omgerrors.ParseError{Reason: "invalid-yaml", Detail: err.Error()}
	}
	n.Body = after
	return &Document{Node: n, Body: after}, nil
}

// ParseFile reads and parses a node file. ENOENT is surfaced to the
// caller as os.ErrNotExist-compatible so read sites can check
// omgerrors.IsAbsent(err).
func ParseFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	doc.Node.FilePath = path
	return doc, nil
}

// Serialize renders a Node + body back into frontmatter-fenced content.
// Field order matches the canonical key ordering used throughout OMG so
// that parse(serialize(x)) round-trips byte-for-byte on normalized input
// (spec.md §8 round-trip property).
func Serialize(n node.Node, body string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")

	writeField(&buf, "id", n.ID)
	if n.UID != "" {
		writeField(&buf, "uid", n.UID)
	}
	if n.CanonicalKey != "" {
		writeField(&buf, "canonicalKey", n.CanonicalKey)
	}
	writeField(&buf, "type", string(n.Type))
	writeField(&buf, "priority", string(n.Priority))
	writeField(&buf, "description", n.Description)
	writeField(&buf, "created", n.Created)
	writeField(&buf, "updated", n.Updated)
	if len(n.Links) > 0 {
		writeList(&buf, "links", n.Links)
	}
	if len(n.Tags) > 0 {
		writeList(&buf, "tags", n.Tags)
	}
	if len(n.Aliases) > 0 {
		writeList(&buf, "aliases", n.Aliases)
	}
	if n.Archived {
		writeField(&buf, "archived", "true")
	}
	if n.MergedInto != "" {
		writeField(&buf, "mergedInto", n.MergedInto)
	}
	if len(n.MergedFrom) > 0 {
		writeList(&buf, "mergedFrom", n.MergedFrom)
	}
	if n.CompressionLevel != 0 {
		writeField(&buf, "compressionLevel", fmt.Sprintf("%d", n.CompressionLevel))
	}

	buf.WriteString(fence + "\n")
	if body != "" {
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\n", key, yamlScalar(value))
}

func writeList(buf *bytes.Buffer, key string, values []string) {
	fmt.Fprintf(buf, "%s:\n", key)
	for _, v := range values {
		fmt.Fprintf(buf, "  - %s\n", yamlScalar(v))
	}
}

// yamlScalar quotes a scalar only when necessary, matching the minimal
// style YAML frontmatter conventionally uses.
func yamlScalar(s string) string {
	if s == "" {
		return `""`
	}
	needsQuote := false
	for _, r := range s {
		switch r {
		case ':', '#', '"', '\'', '\n', '{', '}', '[', ']', ',', '&', '*', '!', '|', '>', '%', '@', '`':
			needsQuote = true
		}
	}
	if strings.TrimSpace(s) != s {
		needsQuote = true
	}
	if !needsQuote {
		return s
	}
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return strings.TrimRight(string(out), "\n")
}

// AtomicWrite writes content to path by writing to a sibling temp file and
// renaming it into place, so readers never observe a partial write. On
// every exit path the temp file is either renamed or removed.
func AtomicWrite(path string, content []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// WriteNode serializes and atomically writes a node to its FilePath.
func WriteNode(n node.Node, body string) error {
	if n.FilePath == "" {
		return fmt.Errorf("write node %s: FilePath not set", n.ID)
	}
	return AtomicWrite(n.FilePath, Serialize(n, body), 0o640)
}

// ReadIfExists reads path, treating ENOENT as "absent" rather than an
// error, per spec.md §7's I/O error policy.
func ReadIfExists(path string) ([]byte, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if omgerrors.IsAbsent(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}
