// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package selector

import (
	"fmt"
	"strings"
)

// Render wraps a Selection in <omg-context>...</omg-context> with
// optional section headings, one node per "### description" block
// (spec.md §4.8, §6).
func Render(sel Selection) string {
	var b strings.Builder
	b.WriteString("<omg-context>\n")

	if sel.Index != nil {
		renderNode(&b, *sel.Index)
	}
	if sel.Now != nil {
		renderNode(&b, *sel.Now)
	}
	if len(sel.Pinned) > 0 {
		b.WriteString("## Pinned\n")
		for _, e := range sel.Pinned {
			renderNode(&b, e)
		}
	}
	if len(sel.MOCs) > 0 {
		b.WriteString("## Maps of Content\n")
		for _, e := range sel.MOCs {
			renderNode(&b, e)
		}
	}
	if len(sel.Regular) > 0 {
		b.WriteString("## Context\n")
		for _, e := range sel.Regular {
			renderNode(&b, e)
		}
	}

	b.WriteString("</omg-context>\n")
	return b.String()
}

func renderNode(b *strings.Builder, e scoredEntry) {
	fmt.Fprintf(b, "### %s\n<!-- %s | %s | %s -->\n%s\n", e.entry.Description, e.id, e.entry.Type, e.entry.Priority, e.body)
}
