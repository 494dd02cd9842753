package renderer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// LineStart prefixes every rendered line. The printer reads it as a
// left-aligned command line; the renderer never interprets it.
const LineStart = "[L]"

// DefaultRuleLength is the width RepeatToFit fills when none is given
const DefaultRuleLength = 32

var (
	ErrInvalidAlignment = receiptformat.ErrInvalidAlignment
	ErrEmptyInput       = errors.New("renderer: text cannot be empty")
	ErrInvalidCell      = errors.New("renderer: column cell must be a string or a number")
)

// RenderLine turns one logical line into a fixed-width command string.
//
// When both sides are set and do not fit, each side is cut by the same raw
// deficit (not proportionally) and the two are joined by a single space.
// If the deficit is larger than a side, that side's cut counts back from its
// end instead, so the body can come out wider than the line: "abc" and "abc"
// at width 1 render as "a a".
func RenderLine(opts receiptformat.LineOptions) (string, error) {
	if err := receiptformat.ValidateLine(opts); err != nil {
		return "", err
	}

	width := opts.Width()
	left := []rune(opts.TextLeft)
	right := []rune(opts.TextRight)

	var body string
	switch {
	case len(left) > 0 && len(right) > 0:
		available := width - (len(left) + len(right))
		if available < 0 {
			body = sliceTo(left, len(left)+available) + " " + sliceTo(right, len(right)+available)
		} else {
			body = string(left) + strings.Repeat(" ", available) + string(right)
		}

	default:
		text := left
		if len(text) == 0 {
			text = right
		}
		if len(text) >= width {
			body = string(text[:width])
			break
		}

		padding := width - len(text)
		switch opts.Alignment {
		case "", receiptformat.AlignLeft:
			body = string(text) + strings.Repeat(" ", padding)
		case receiptformat.AlignRight:
			body = strings.Repeat(" ", padding) + string(text)
		case receiptformat.AlignCenter:
			leftPad := padding / 2
			body = strings.Repeat(" ", leftPad) + string(text) + strings.Repeat(" ", padding-leftPad)
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidAlignment, string(opts.Alignment))
		}
	}

	var b strings.Builder
	b.WriteString(LineStart)
	b.WriteString(formatStart(opts))
	b.WriteString(body)
	b.WriteString(formatEnd(opts))
	if opts.NewLine {
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// RepeatToFit repeats text end to end and cuts it to exactly lineLength.
// A non-positive lineLength falls back to DefaultRuleLength.
func RepeatToFit(text string, lineLength int) (string, error) {
	if text == "" {
		return "", ErrEmptyInput
	}
	if lineLength <= 0 {
		lineLength = DefaultRuleLength
	}

	pattern := []rune(text)
	repeats := (lineLength + len(pattern) - 1) / len(pattern)
	repeated := []rune(strings.Repeat(text, repeats))

	return string(repeated[:lineLength]), nil
}

// sliceTo keeps the first end runes of s. A negative end counts back from
// the end of s and clamps at zero.
func sliceTo(s []rune, end int) string {
	if end < 0 {
		end += len(s)
		if end < 0 {
			end = 0
		}
	}
	if end > len(s) {
		end = len(s)
	}
	return string(s[:end])
}

func formatStart(opts receiptformat.LineOptions) string {
	var b strings.Builder
	if opts.Bold {
		b.WriteString("<b>")
	}
	if opts.Underline {
		b.WriteString("<u>")
	}
	if opts.FontSize != receiptformat.FontNone {
		fmt.Fprintf(&b, "<font size='%s'>", opts.FontSize)
	}
	return b.String()
}

func formatEnd(opts receiptformat.LineOptions) string {
	var b strings.Builder
	if opts.FontSize != receiptformat.FontNone {
		b.WriteString("</font>")
	}
	if opts.Underline {
		b.WriteString("</u>")
	}
	if opts.Bold {
		b.WriteString("</b>")
	}
	return b.String()
}
