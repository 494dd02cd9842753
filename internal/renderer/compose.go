package renderer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// Composer builds receipt payloads, reading the time from Clock
type Composer struct {
	Clock func() time.Time
}

// NewComposer creates a composer backed by the wall clock
func NewComposer() *Composer {
	return &Composer{Clock: time.Now}
}

// Compose builds the payload for job at the composer's current time
func (c *Composer) Compose(job *receiptformat.Job) (string, error) {
	now := time.Now
	if c != nil && c.Clock != nil {
		now = c.Clock
	}
	return Compose(job, now())
}

// Compose builds the full print payload for a bill. It is a pure function
// of job and now.
func Compose(job *receiptformat.Job, now time.Time) (string, error) {
	if err := receiptformat.ValidateJob(job); err != nil {
		return "", err
	}

	rule, err := RepeatToFit("-", DefaultRuleLength)
	if err != nil {
		return "", err
	}

	columns, err := RearrangeToColumns(Amounts(job.Items))
	if err != nil {
		return "", fmt.Errorf("failed to lay out items: %w", err)
	}

	separator := receiptformat.LineOptions{TextLeft: rule}
	date, clock := FormatDateTime(now)

	lines := []any{
		receiptformat.LineOptions{
			TextLeft:  job.Header(),
			FontSize:  receiptformat.FontTall,
			Alignment: receiptformat.AlignCenter,
			NewLine:   true,
		},
		separator,
		receiptformat.LineOptions{TextLeft: "DATE:" + date, TextRight: "TIME:" + clock},
		separator,
		columns,
		separator,
		receiptformat.LineOptions{
			TextLeft:  "TOTAL AMOUNT:",
			TextRight: FormatAmount(job.Total()),
			FontSize:  receiptformat.FontTall,
		},
		separator,
		receiptformat.LineOptions{TextLeft: "TOTAL ITEMS", TextRight: strconv.Itoa(job.ItemCount())},
		"\n",
		separator,
		receiptformat.LineOptions{TextLeft: job.Closing(), Alignment: receiptformat.AlignCenter},
	}

	var b strings.Builder
	for _, part := range lines {
		switch p := part.(type) {
		case string:
			b.WriteString(p)
		case receiptformat.LineOptions:
			line, err := RenderLine(p)
			if err != nil {
				return "", err
			}
			b.WriteString(line)
		}
	}

	return b.String(), nil
}

// FormatDateTime returns now as DD/MM/YYYY and HH:MM
func FormatDateTime(now time.Time) (date, clock string) {
	return now.Format("02/01/2006"), now.Format("15:04")
}
