package domain

import (
	"bytes"
	"encoding/json"
)

// PageStructure is the semantic skeleton extracted from a page's HTML.
// Extraction is deterministic: identical input HTML yields identical output.
type PageStructure struct {
	PageInfo   PageInfo    `json:"page_info"`
	Headings   []Heading   `json:"headings"`
	Links      []string    `json:"links"`
	Images     []string    `json:"images"`
	Buttons    []Button    `json:"buttons"`
	Inputs     []Input     `json:"inputs"`
	Lists      []List      `json:"lists"`
	Forms      []Form      `json:"forms"`
	Navigation *Navigation `json:"navigation,omitempty"`
	Skeleton   string      `json:"skeleton,omitempty"`
}

// PageInfo holds document metadata.
type PageInfo struct {
	Title           string `json:"title"`
	MetaDescription string `json:"meta_description"`
	MetaKeywords    string `json:"meta_keywords"`
}

// Heading is a single h1..h6 element.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Button is a button or input[type=submit|button] element.
type Button struct {
	Text string `json:"text"`
	Type string `json:"type,omitempty"`
}

// Input is a form input element. Placeholder is populated for page-level
// inventories, Required for inputs listed under their form.
type Input struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// List is an ordered or unordered list with its item texts.
type List struct {
	Type  string   `json:"type"` // "ul" or "ol"
	Items []string `json:"items"`
}

// Form is a form element with its inputs and selects.
type Form struct {
	Method  string   `json:"method,omitempty"`
	Action  string   `json:"action,omitempty"`
	Inputs  []Input  `json:"inputs,omitempty"`
	Selects []Select `json:"selects,omitempty"`
}

// Select is a select element with its option texts.
type Select struct {
	Name    string   `json:"name,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Navigation groups the page's navigational structures.
type Navigation struct {
	NavLinks    []string   `json:"nav_links"`
	Breadcrumbs []string   `json:"breadcrumbs"`
	Menus       [][]string `json:"menus"`
}

// Equal reports whether two structures are identical. Change detection
// treats structure as an opaque value, so equality is byte equality of the
// canonical JSON encoding.
func (s *PageStructure) Equal(other *PageStructure) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, errA := json.Marshal(s)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}
