// Package receiptformat defines the wire types for bill receipts and print lines
package receiptformat

import "errors"

// Version is the only supported job file version
const Version = "1.0"

// DefaultLineLength is the width used when a line does not set one
const DefaultLineLength = 31

// Default template texts
const (
	DefaultStoreName = "SARASWATI GENERAL STORE"
	DefaultFooter    = "Thank you, visit again!"
)

var (
	ErrInvalidAlignment  = errors.New("receiptformat: invalid alignment, use left, right or center")
	ErrInvalidFontSize   = errors.New("receiptformat: invalid font size, use big or tall")
	ErrInvalidLineLength = errors.New("receiptformat: line length must be positive")
	ErrInvalidJob        = errors.New("receiptformat: invalid job")
)

// Alignment positions a single text inside a line
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignRight  Alignment = "right"
	AlignCenter Alignment = "center"
)

// Valid reports whether a is one of the known alignments. Empty means left.
func (a Alignment) Valid() bool {
	switch a {
	case "", AlignLeft, AlignRight, AlignCenter:
		return true
	}
	return false
}

// FontSize selects the printer font scale. Empty means normal size.
type FontSize string

const (
	FontNone FontSize = ""
	FontBig  FontSize = "big"
	FontTall FontSize = "tall"
)

// Valid reports whether f is a known font size
func (f FontSize) Valid() bool {
	switch f {
	case FontNone, FontBig, FontTall:
		return true
	}
	return false
}

// LineOptions describes one logical print line
type LineOptions struct {
	TextLeft   string    `json:"textLeft,omitempty"`
	TextRight  string    `json:"textRight,omitempty"`
	LineLength int       `json:"lineLength,omitempty"` // 0 means DefaultLineLength
	Alignment  Alignment `json:"alignment,omitempty"`  // only used when one side is set
	Bold       bool      `json:"bold,omitempty"`
	Underline  bool      `json:"underline,omitempty"`
	FontSize   FontSize  `json:"fontSize,omitempty"`
	NewLine    bool      `json:"newLine,omitempty"`
}

// Width returns the effective line length
func (o LineOptions) Width() int {
	if o.LineLength == 0 {
		return DefaultLineLength
	}
	return o.LineLength
}

// Job is a bill to print: the billed amounts plus the header and footer template
type Job struct {
	Version   string    `json:"version,omitempty"`
	Items     []float64 `json:"items"`
	StoreName string    `json:"storeName,omitempty"`
	Footer    string    `json:"footer,omitempty"`
}

// Total returns the arithmetic sum of all items
func (j *Job) Total() float64 {
	var total float64
	for _, item := range j.Items {
		total += item
	}
	return total
}

// ItemCount returns the number of billed items
func (j *Job) ItemCount() int {
	return len(j.Items)
}

// Header returns the store name, falling back to the default
func (j *Job) Header() string {
	if j.StoreName == "" {
		return DefaultStoreName
	}
	return j.StoreName
}

// Closing returns the footer text, falling back to the default
func (j *Job) Closing() string {
	if j.Footer == "" {
		return DefaultFooter
	}
	return j.Footer
}
