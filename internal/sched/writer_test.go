package sched

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRotateSpec(t *testing.T) {
	tests := []struct {
		text      string
		wantKind  RotateSpecKind
		wantBytes int64
		wantNBak  int
	}{
		{"10MB.3", RotateBySize, 10 << 20, 3},
		{"1KB.0", RotateBySize, 1 << 10, 0},
	}
	for _, tt := range tests {
		got, err := ParseRotateSpec(tt.text)
		if err != nil {
			t.Errorf("ParseRotateSpec(%q): %v", tt.text, err)
			continue
		}
		if got.Kind != tt.wantKind || got.Bytes != tt.wantBytes || got.NBackup != tt.wantNBak {
			t.Errorf("ParseRotateSpec(%q) = %+v, want kind=%v bytes=%v nbackup=%v",
				tt.text, got, tt.wantKind, tt.wantBytes, tt.wantNBak)
		}
	}
}

func TestParseRotateSpecRejectsBadInput(t *testing.T) {
	for _, text := range []string{"10XB.3", "10MB", "10MB.x"} {
		if _, err := ParseRotateSpec(text); err == nil {
			t.Errorf("ParseRotateSpec(%q): expected error, got nil", text)
		}
	}
}

func TestRotatingWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xlog.jsonl")

	spec, err := ParseRotateSpec("0.01KB.2")
	if err != nil {
		t.Fatalf("ParseRotateSpec: %v", err)
	}
	w, err := NewRotatingWriter(path, spec)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteLine("0123456789"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if !w.NeedRotate() {
		t.Fatal("NeedRotate() = false after exceeding size threshold")
	}
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if w.NeedRotate() {
		t.Fatal("NeedRotate() = true right after rotation")
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("backup file missing after rotate: %v", err)
	}

	if err := w.WriteLine("next"); err != nil {
		t.Fatalf("WriteLine after rotate: %v", err)
	}
}
