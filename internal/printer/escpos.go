package printer

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ESC/POS commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// ESCPOSEncoder generates ESC/POS commands
type ESCPOSEncoder struct {
	buffer  *bytes.Buffer
	charset *encoding.Encoder
}

// NewESCPOSEncoder creates a new ESC/POS encoder writing CP437 text
func NewESCPOSEncoder() *ESCPOSEncoder {
	return &ESCPOSEncoder{
		buffer:  new(bytes.Buffer),
		charset: encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder()),
	}
}

// Initialize sends initialization command
func (e *ESCPOSEncoder) Initialize() {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('@')
}

// PartialCut sends partial cut command
func (e *ESCPOSEncoder) PartialCut() {
	e.buffer.WriteByte(GS)
	e.buffer.WriteByte('V')
	e.buffer.WriteByte(1)
}

// LineFeed sends line feed
func (e *ESCPOSEncoder) LineFeed() {
	e.buffer.WriteByte(LF)
}

// FeedMM advances the paper by mm millimetres at the given resolution
func (e *ESCPOSEncoder) FeedMM(mm, dpi int) {
	if mm <= 0 || dpi <= 0 {
		return
	}
	dots := int(math.Round(float64(mm) * float64(dpi) / 25.4))
	for dots > 0 {
		n := dots
		if n > 255 {
			n = 255
		}
		e.buffer.WriteByte(ESC)
		e.buffer.WriteByte('J')
		e.buffer.WriteByte(byte(n))
		dots -= n
	}
}

// SetAlignment sets text alignment
func (e *ESCPOSEncoder) SetAlignment(align string) {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('a')

	switch align {
	case "center":
		e.buffer.WriteByte(1)
	case "right":
		e.buffer.WriteByte(2)
	default:
		e.buffer.WriteByte(0)
	}
}

// SetTextSize sets character width and height multipliers (1-8)
func (e *ESCPOSEncoder) SetTextSize(width, height int) {
	width = min(max(width, 1), 8)
	height = min(max(height, 1), 8)

	size := byte(((width - 1) << 4) | (height - 1))

	e.buffer.WriteByte(GS)
	e.buffer.WriteByte('!')
	e.buffer.WriteByte(size)
}

// SetBold enables or disables bold text
func (e *ESCPOSEncoder) SetBold(enabled bool) {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('E')
	e.buffer.WriteByte(boolByte(enabled))
}

// SetUnderline enables or disables single underline
func (e *ESCPOSEncoder) SetUnderline(enabled bool) {
	e.buffer.WriteByte(ESC)
	e.buffer.WriteByte('-')
	e.buffer.WriteByte(boolByte(enabled))
}

// OpenCashDrawer pulses drawer kick pin 2
func (e *ESCPOSEncoder) OpenCashDrawer() {
	e.buffer.Write([]byte{ESC, 'p', 0, 25, 250})
}

// WriteText writes text in the printer code page
func (e *ESCPOSEncoder) WriteText(text string) error {
	encoded, err := e.charset.String(text)
	if err != nil {
		return fmt.Errorf("failed to encode text: %w", err)
	}
	e.buffer.WriteString(encoded)
	return nil
}

// GetBytes returns the generated ESC/POS commands
func (e *ESCPOSEncoder) GetBytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer
func (e *ESCPOSEncoder) Reset() {
	e.buffer.Reset()
}

var alignMarkers = map[string]string{
	"[L]": "left",
	"[C]": "center",
	"[R]": "right",
}

var fontSizes = map[string][2]int{
	"<font size='normal'>": {1, 1},
	"<font size='wide'>":   {2, 1},
	"<font size='tall'>":   {1, 2},
	"<font size='big'>":    {2, 2},
}

// EncodePayload converts the markup payload of t into ESC/POS bytes and
// appends feed, cut and cash drawer commands as configured. An alignment
// marker in the middle of a line starts a new line.
func EncodePayload(t Target) ([]byte, error) {
	e := NewESCPOSEncoder()
	e.Initialize()

	s := t.Payload
	lineHasContent := false
	for len(s) > 0 {
		i := strings.IndexAny(s, "[<\n")
		if i != 0 {
			text := s
			if i > 0 {
				text = s[:i]
			}
			if err := e.WriteText(text); err != nil {
				return nil, err
			}
			lineHasContent = true
			s = s[len(text):]
			continue
		}

		if s[0] == '\n' {
			e.LineFeed()
			lineHasContent = false
			s = s[1:]
			continue
		}

		if n, ok := e.applyTag(s, &lineHasContent); ok {
			s = s[n:]
			continue
		}

		// Not a known tag, print the character as text
		if err := e.WriteText(s[:1]); err != nil {
			return nil, err
		}
		lineHasContent = true
		s = s[1:]
	}

	if lineHasContent {
		e.LineFeed()
	}

	e.FeedMM(t.FeedMM, t.DPI)
	if t.AutoCut {
		e.PartialCut()
	}
	if t.OpenCashbox {
		e.OpenCashDrawer()
	}

	return e.GetBytes(), nil
}

// applyTag handles a markup tag at the start of s and returns its length
func (e *ESCPOSEncoder) applyTag(s string, lineHasContent *bool) (int, bool) {
	if len(s) >= 3 {
		if align, ok := alignMarkers[s[:3]]; ok {
			if *lineHasContent {
				e.LineFeed()
				*lineHasContent = false
			}
			e.SetAlignment(align)
			return 3, true
		}
	}

	end := strings.IndexByte(s, '>')
	if s[0] != '<' || end < 0 {
		return 0, false
	}
	tag := s[:end+1]

	switch tag {
	case "<b>", "</b>":
		e.SetBold(tag == "<b>")
	case "<u>", "</u>":
		e.SetUnderline(tag == "<u>")
	case "</font>":
		e.SetTextSize(1, 1)
	default:
		size, ok := fontSizes[tag]
		if !ok {
			return 0, false
		}
		e.SetTextSize(size[0], size[1])
	}
	return len(tag), true
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
