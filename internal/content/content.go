// Package content defines the typed content items produced by the crawler and
// the normalized records shared by the graph ingestor and the index publisher.
package content

import (
	"strings"
	"unicode/utf8"
)

// Type classifies an extracted content item.
type Type string

// Content types recognized by the extractor.
const (
	TypeHeading1  Type = "heading1"
	TypeHeading2  Type = "heading2"
	TypeHeading3  Type = "heading3"
	TypeHeading4  Type = "heading4"
	TypeParagraph Type = "paragraph"
	TypeListItem  Type = "listItem"
	TypeImage     Type = "image"
	TypeLink      Type = "link"
)

const (
	// MinTextLength is the exclusive lower bound, in runes, for body text.
	MinTextLength = 10
	// MinHeadingLength is the exclusive lower bound, in runes, for heading text.
	// Headings are short section titles ("Fun Facts" is 9 runes), so they get
	// a lower bar than body text or most of them would never become nodes.
	MinHeadingLength = 3
)

// HeadingType maps an h1-h4 tag name to its content type.
func HeadingType(tag string) (Type, bool) {
	switch strings.ToLower(tag) {
	case "h1":
		return TypeHeading1, true
	case "h2":
		return TypeHeading2, true
	case "h3":
		return TypeHeading3, true
	case "h4":
		return TypeHeading4, true
	default:
		return "", false
	}
}

// IsHeading reports whether t is one of the heading levels.
func (t Type) IsHeading() bool {
	switch t {
	case TypeHeading1, TypeHeading2, TypeHeading3, TypeHeading4:
		return true
	default:
		return false
	}
}

// IsBody reports whether t is a paragraph or list item.
func (t Type) IsBody() bool {
	return t == TypeParagraph || t == TypeListItem
}

// GraphEligible reports whether items of type t become graph nodes.
func (t Type) GraphEligible() bool {
	return t.IsHeading() || t.IsBody()
}

// Item is a single piece of content extracted from a rendered page.
type Item struct {
	Type      Type   `json:"type"`
	Text      string `json:"text"`
	SourceURL string `json:"url"`
	// Target is the resolved absolute URL of an image or link item.
	Target string `json:"target,omitempty"`
}

// Normalized is the canonical record written to the graph and the index.
type Normalized struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type Type   `json:"type"`
	URL  string `json:"url"`
}

// LongEnough applies the text length rule for t. Headings use
// MinHeadingLength, everything else MinTextLength.
func LongEnough(t Type, text string) bool {
	n := utf8.RuneCountInString(text)
	if t.IsHeading() {
		return n > MinHeadingLength
	}
	return n > MinTextLength
}

// Normalize filters raw items down to graph-eligible records with a derived
// id. Items sharing an id are kept once, first occurrence wins.
func Normalize(items []Item) []Normalized {
	out := make([]Normalized, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if !item.Type.GraphEligible() {
			continue
		}
		text := strings.TrimSpace(item.Text)
		if text == "" || !LongEnough(item.Type, text) {
			continue
		}
		id := DeriveID(item.SourceURL, text)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Normalized{
			ID:   id,
			Text: text,
			Type: item.Type,
			URL:  item.SourceURL,
		})
	}
	return out
}
