package renderer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

func TestRenderLine_LeftAndRight(t *testing.T) {
	line, err := RenderLine(receiptformat.LineOptions{TextLeft: "A", TextRight: "B", LineLength: 31})
	if err != nil {
		t.Fatalf("Failed to render line: %v", err)
	}

	expected := LineStart + "A" + strings.Repeat(" ", 29) + "B"
	if line != expected {
		t.Errorf("Expected %q, got %q", expected, line)
	}
}

func TestRenderLine_OverflowCutsBothSidesByDeficit(t *testing.T) {
	line, _ := RenderLine(receiptformat.LineOptions{TextLeft: "AAAAA", TextRight: "BBBBB", LineLength: 6})
	if line != LineStart+"A B" {
		t.Errorf("Expected %q, got %q", LineStart+"A B", line)
	}
}

func TestRenderLine_OverflowNegativeSliceEnd(t *testing.T) {
	// deficit 7: left keeps 12-7=5, right end is 5-7=-2 which counts back from the end
	line, _ := RenderLine(receiptformat.LineOptions{
		TextLeft:   strings.Repeat("L", 12),
		TextRight:  "RRRRR",
		LineLength: 10,
	})
	if line != LineStart+"LLLLL RRR" {
		t.Errorf("Expected %q, got %q", LineStart+"LLLLL RRR", line)
	}

	// deficit 11: left end 1-11=-10 is past the start and clamps to empty
	line, _ = RenderLine(receiptformat.LineOptions{TextLeft: "A", TextRight: strings.Repeat("B", 20), LineLength: 10})
	expected := LineStart + " " + strings.Repeat("B", 9)
	if line != expected {
		t.Errorf("Expected %q, got %q", expected, line)
	}

	// the counted-back cut can leave the body wider than the line
	line, _ = RenderLine(receiptformat.LineOptions{TextLeft: "abc", TextRight: "abc", LineLength: 1})
	if line != LineStart+"a a" {
		t.Errorf("Expected %q, got %q", LineStart+"a a", line)
	}
}

func TestRenderLine_SingleTextFillsWidth(t *testing.T) {
	for _, text := range []string{"", "x", "TOTAL", strings.Repeat("z", 30)} {
		line, err := RenderLine(receiptformat.LineOptions{TextLeft: text, Alignment: receiptformat.AlignLeft})
		if err != nil {
			t.Fatalf("Failed to render %q: %v", text, err)
		}
		body := strings.TrimPrefix(line, LineStart)
		if len(body) != receiptformat.DefaultLineLength {
			t.Errorf("Expected width %d for %q, got %d", receiptformat.DefaultLineLength, text, len(body))
		}
		if !strings.HasPrefix(body, text) {
			t.Errorf("Expected left-aligned %q, got %q", text, body)
		}
	}
}

func TestRenderLine_Alignment(t *testing.T) {
	tests := []struct {
		opts     receiptformat.LineOptions
		expected string
	}{
		{receiptformat.LineOptions{TextLeft: "ab", LineLength: 5, Alignment: receiptformat.AlignRight}, "   ab"},
		{receiptformat.LineOptions{TextRight: "ab", LineLength: 5}, "ab   "},
		{receiptformat.LineOptions{TextLeft: "ab", LineLength: 7, Alignment: receiptformat.AlignCenter}, "  ab   "},
		{receiptformat.LineOptions{TextLeft: "ab", LineLength: 6, Alignment: receiptformat.AlignCenter}, "  ab  "},
		{receiptformat.LineOptions{TextLeft: "abcdef", LineLength: 4, Alignment: receiptformat.AlignCenter}, "abcd"},
	}

	for _, tt := range tests {
		line, err := RenderLine(tt.opts)
		if err != nil {
			t.Fatalf("Failed to render %+v: %v", tt.opts, err)
		}
		if line != LineStart+tt.expected {
			t.Errorf("For %+v expected %q, got %q", tt.opts, LineStart+tt.expected, line)
		}
	}
}

func TestRenderLine_FormatTags(t *testing.T) {
	line, _ := RenderLine(receiptformat.LineOptions{
		TextLeft:   "x",
		LineLength: 1,
		Bold:       true,
		Underline:  true,
		FontSize:   receiptformat.FontTall,
		NewLine:    true,
	})

	expected := "[L]<b><u><font size='tall'>x</font></u></b>\n"
	if line != expected {
		t.Errorf("Expected %q, got %q", expected, line)
	}
}

func TestRenderLine_InvalidAlignment(t *testing.T) {
	_, err := RenderLine(receiptformat.LineOptions{TextLeft: "x", Alignment: "justify"})
	if !errors.Is(err, ErrInvalidAlignment) {
		t.Errorf("Expected ErrInvalidAlignment, got %v", err)
	}
}

func TestRepeatToFit(t *testing.T) {
	rule, err := RepeatToFit("-", 10)
	if err != nil {
		t.Fatalf("Failed to repeat: %v", err)
	}
	if rule != "----------" {
		t.Errorf("Expected 10 dashes, got %q", rule)
	}

	if rule, _ := RepeatToFit("ab", 5); rule != "ababa" {
		t.Errorf("Expected 'ababa', got %q", rule)
	}
	if rule, _ := RepeatToFit("=", 0); len(rule) != DefaultRuleLength {
		t.Errorf("Expected default length %d, got %d", DefaultRuleLength, len(rule))
	}

	if _, err := RepeatToFit("", 10); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestRearrangeToColumns_PairsAcrossMidpoint(t *testing.T) {
	out, err := RearrangeToColumns([]any{10, 20, 30})
	if err != nil {
		t.Fatalf("Failed to rearrange: %v", err)
	}

	expected := LineStart + "10" + strings.Repeat(" ", 27) + "30" +
		LineStart + "20" + strings.Repeat(" ", 29)
	if out != expected {
		t.Errorf("Expected %q, got %q", expected, out)
	}
}

func TestRearrangeToColumns_Mixed(t *testing.T) {
	out, err := RearrangeToColumns([]any{"a", 1.5, "c", uint8(4)})
	if err != nil {
		t.Fatalf("Failed to rearrange: %v", err)
	}
	if strings.Count(out, LineStart) != 2 {
		t.Errorf("Expected 2 lines, got %q", out)
	}
	if !strings.HasPrefix(out, LineStart+"a") || !strings.Contains(out, "c"+LineStart+"1.5") {
		t.Errorf("Unexpected pairing: %q", out)
	}
}

func TestRearrangeToColumns_Empty(t *testing.T) {
	out, err := RearrangeToColumns(nil)
	if err != nil || out != "" {
		t.Errorf("Expected empty output, got %q (%v)", out, err)
	}
}

func TestRearrangeToColumns_InvalidCell(t *testing.T) {
	_, err := RearrangeToColumns([]any{1, struct{}{}})
	if !errors.Is(err, ErrInvalidCell) {
		t.Errorf("Expected ErrInvalidCell, got %v", err)
	}
}

func TestCompose(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 7, 0, 0, time.UTC)
	payload, err := Compose(&receiptformat.Job{Items: []float64{100, 250}}, now)
	if err != nil {
		t.Fatalf("Failed to compose: %v", err)
	}

	sep := LineStart + strings.Repeat("-", 31)
	expected := "[L]<font size='tall'>    SARASWATI GENERAL STORE    </font>\n" +
		sep +
		LineStart + "DATE:05/03/2024" + strings.Repeat(" ", 6) + "TIME:09:07" +
		sep +
		LineStart + "100" + strings.Repeat(" ", 25) + "250" +
		sep +
		"[L]<font size='tall'>TOTAL AMOUNT:" + strings.Repeat(" ", 15) + "350</font>" +
		sep +
		LineStart + "TOTAL ITEMS" + strings.Repeat(" ", 19) + "2" +
		"\n" +
		sep +
		LineStart + "    Thank you, visit again!    "

	if payload != expected {
		t.Errorf("Unexpected payload:\nexpected %q\ngot      %q", expected, payload)
	}
}

func TestCompose_Deterministic(t *testing.T) {
	now := time.Date(2025, time.December, 31, 23, 59, 0, 0, time.UTC)
	job := &receiptformat.Job{Items: []float64{0.5, 0.25}, StoreName: "KIOSK", Footer: "BYE"}

	c := &Composer{Clock: func() time.Time { return now }}
	first, err := c.Compose(job)
	if err != nil {
		t.Fatalf("Failed to compose: %v", err)
	}
	second, _ := Compose(job, now)
	if first != second {
		t.Error("Expected identical payloads for the same job and time")
	}
	if !strings.Contains(first, "0.75</font>") {
		t.Errorf("Expected fractional total, got %q", first)
	}
}

func TestCompose_InvalidJob(t *testing.T) {
	if _, err := Compose(nil, time.Now()); !errors.Is(err, receiptformat.ErrInvalidJob) {
		t.Errorf("Expected ErrInvalidJob, got %v", err)
	}
}
