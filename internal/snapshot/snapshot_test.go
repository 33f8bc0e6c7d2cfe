package snapshot

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestWriteFrameEmitsHeaderAndColorsOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0.01, 10)

	frame0 := []Record{
		{X: 0.2, Y: 0.2, CR: 1, CG: 0, CB: 0},
		{X: 0.8, Y: 0.8, CR: 0, CG: 1, CB: 0},
	}
	if err := w.WriteFrame(frame0); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame1 := []Record{
		{X: 0.21, Y: 0.21},
		{X: 0.79, Y: 0.79},
	}
	if err := w.WriteFrame(frame1); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame2 := []Record{
		{X: 0.22, Y: 0.22},
		{X: 0.78, Y: 0.78},
	}
	if err := w.WriteFrame(frame2); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	lines := splitLines(t, buf.String())

	wantHeader := []string{"n 2", "r 0.01", "s 1", "a 10"}
	for i, want := range wantHeader {
		if lines[i] != want {
			t.Fatalf("header line %d = %q, want %q", i, lines[i], want)
		}
	}

	cLines := 0
	pLines := 0
	for _, l := range lines[len(wantHeader):] {
		switch {
		case strings.HasPrefix(l, "c "):
			cLines++
		case strings.HasPrefix(l, "p "):
			pLines++
		}
	}
	if cLines != 2 {
		t.Fatalf("got %d c-lines, want 2 (once, at frame 0)", cLines)
	}
	if pLines != 6 {
		t.Fatalf("got %d p-lines, want 6 (2 particles x 3 frames)", pLines)
	}
}

func TestWriteFrameRejectsParticleCountChange(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0.01, 10)
	if err := w.WriteFrame([]Record{{X: 0.1, Y: 0.1}}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.WriteFrame([]Record{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}}); err == nil {
		t.Fatal("expected an error when the record count changes after frame 0")
	}
}

func splitLines(t *testing.T, s string) []string {
	t.Helper()
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	return out
}
