package renderer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// RearrangeToColumns lays items out in two columns. The list is padded to an
// even length and split at its midpoint, so item k shares a line with item
// k+ceil(n/2) rather than with its neighbour.
func RearrangeToColumns(items []any) (string, error) {
	cells := make([]string, 0, len(items)+1)
	for i, item := range items {
		cell, err := formatCell(item)
		if err != nil {
			return "", fmt.Errorf("item[%d]: %w", i, err)
		}
		cells = append(cells, cell)
	}

	if len(cells)%2 != 0 {
		cells = append(cells, " ")
	}

	mid := (len(cells) + 1) / 2
	firstHalf, secondHalf := cells[:mid], cells[mid:]

	var b strings.Builder
	for i, left := range firstHalf {
		right := ""
		if i < len(secondHalf) {
			right = secondHalf[i]
		}

		line, err := RenderLine(receiptformat.LineOptions{TextLeft: left, TextRight: right})
		if err != nil {
			return "", err
		}
		b.WriteString(line)
	}

	return b.String(), nil
}

// Amounts converts billed amounts into column cells
func Amounts(items []float64) []any {
	cells := make([]any, len(items))
	for i, item := range items {
		cells[i] = item
	}
	return cells
}

// FormatAmount renders a number in its shortest round-trip form (350, 10.5)
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCell(v any) (string, error) {
	switch n := v.(type) {
	case string:
		return n, nil
	case float64:
		return FormatAmount(n), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(n), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", n), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", n), nil
	default:
		return "", fmt.Errorf("%w: got %T", ErrInvalidCell, v)
	}
}
