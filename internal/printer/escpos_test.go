package printer

import (
	"bytes"
	"testing"
)

func TestEncodePayload_Formatting(t *testing.T) {
	data, err := EncodePayload(Target{Payload: "[L]<b><u><font size='tall'>Hi</font></u></b>\n"})
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	expected := []byte{
		ESC, '@',
		ESC, 'a', 0,
		ESC, 'E', 1,
		ESC, '-', 1,
		GS, '!', 0x01,
		'H', 'i',
		GS, '!', 0x00,
		ESC, '-', 0,
		ESC, 'E', 0,
		LF,
	}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %v, got %v", expected, data)
	}
}

func TestEncodePayload_MarkerStartsNewLine(t *testing.T) {
	data, _ := EncodePayload(Target{Payload: "[L]one[C]two"})

	expected := []byte{ESC, '@', ESC, 'a', 0, 'o', 'n', 'e', LF, ESC, 'a', 1, 't', 'w', 'o', LF}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %v, got %v", expected, data)
	}
}

func TestEncodePayload_UnknownTagIsText(t *testing.T) {
	data, _ := EncodePayload(Target{Payload: "a<i>b[X]"})
	if !bytes.Contains(data, []byte("a<i>b[X]")) {
		t.Errorf("Expected unknown tags as text, got %q", data)
	}
}

func TestEncodePayload_FeedCutAndDrawer(t *testing.T) {
	data, _ := EncodePayload(Target{Payload: "x", FeedMM: 5, DPI: 203, AutoCut: true, OpenCashbox: true})

	// 5mm at 203dpi is 40 dots
	if !bytes.Contains(data, []byte{ESC, 'J', 40}) {
		t.Errorf("Expected 40 dot feed, got %v", data)
	}
	if !bytes.Contains(data, []byte{GS, 'V', 1}) {
		t.Error("Expected cut command")
	}
	if !bytes.HasSuffix(data, []byte{ESC, 'p', 0, 25, 250}) {
		t.Error("Expected cash drawer kick at the end")
	}

	data, _ = EncodePayload(Target{Payload: "x"})
	if bytes.Contains(data, []byte{GS, 'V'}) {
		t.Error("Expected no cut when AutoCut is off")
	}
}

func TestEncodePayload_CodePage(t *testing.T) {
	data, _ := EncodePayload(Target{Payload: "é€"})

	// é is 0x82 in CP437, € has no mapping and is replaced
	if !bytes.Contains(data, []byte{0x82}) {
		t.Errorf("Expected CP437 é, got %v", data)
	}
	if bytes.Contains(data, []byte("€")) {
		t.Error("Expected unsupported rune to be replaced")
	}
}
