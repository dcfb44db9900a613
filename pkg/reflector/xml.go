// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reflector

import (
	"encoding/xml"
	"strings"
)

type rawReflection struct {
	XMLName      xml.Name         `xml:"reflection"`
	Description  string           `xml:"description"`
	Body         string           `xml:"body"`
	Tags         string           `xml:"tags"`
	MOCDomains   string           `xml:"moc-domains"`
	ArchiveSources string         `xml:"archive-sources"`
	FieldUpdates rawFieldUpdates  `xml:"field-updates"`
}

type rawFieldUpdates struct {
	Updates []rawFieldUpdate `xml:"update"`
}

type rawFieldUpdate struct {
	NodeID string `xml:"node-id,attr"`
	Field  string `xml:"field,attr"`
	Action string `xml:"action,attr"`
	Value  string `xml:",chardata"`
}

// parseReflectXML parses the Reflect LLM response. Never errors: a
// structurally broken document degrades to an empty Synthesis plus a
// diagnostic, matching the Extract phase's "never throws" contract
// (spec.md §4.4, §4.12).
func parseReflectXML(raw string) (Synthesis, []string) {
	var doc rawReflection
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return Synthesis{}, []string{"xml-parse-failure: " + err.Error()}
	}

	var diags []string
	syn := Synthesis{
		Description: strings.TrimSpace(doc.Description),
		Body:        doc.Body,
		Tags:        splitCommaTrim(doc.Tags),
		MOCDomains:  splitCommaTrim(doc.MOCDomains),
	}
	if doc.Description == "" {
		diags = append(diags, "missing description")
	}
	if strings.TrimSpace(doc.Body) == "" {
		diags = append(diags, "missing body")
	}
	for _, id := range splitCommaTrim(doc.ArchiveSources) {
		syn.ArchiveSourceIDs = append(syn.ArchiveSourceIDs, id)
	}
	for _, u := range doc.FieldUpdates.Updates {
		if u.NodeID == "" || u.Field == "" || u.Action == "" {
			diags = append(diags, "field-update missing required attribute")
			continue
		}
		syn.FieldUpdates = append(syn.FieldUpdates, FieldUpdate{
			NodeID: u.NodeID, Field: u.Field, Action: u.Action, Value: strings.TrimSpace(u.Value),
		})
	}
	return syn, diags
}

func splitCommaTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
