package sched

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Writer is the destination xlog writes its JSON-Lines output to.
type Writer interface {
	// WriteLine emits and flushes one line (without its trailing "\n").
	WriteLine(line string) error
	// NeedRotate reports whether it is time to rotate the output.
	NeedRotate() bool
	// Rotate performs the rotation.
	Rotate() error
	// RotateSpec renders the writer's rotation specification, or "" for
	// a plain (non-rotating) writer. Included in every sync event's
	// "generator" field so a reader can reconstruct how the file it is
	// looking at was produced.
	RotateSpec() string
	// Close flushes and closes the current output file.
	Close() error
}

// PlainWriter appends to a single file forever.
type PlainWriter struct {
	f *os.File
}

// NewPlainWriter opens (creating/appending) path as a PlainWriter.
func NewPlainWriter(path string) (*PlainWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("sched: open %s: %w", path, err)
	}
	return &PlainWriter{f: f}, nil
}

func (w *PlainWriter) WriteLine(line string) error {
	_, err := w.f.WriteString(line + "\n")
	if err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *PlainWriter) NeedRotate() bool { return false }
func (w *PlainWriter) Rotate() error    { return nil }
func (w *PlainWriter) RotateSpec() string { return "" }
func (w *PlainWriter) Close() error     { return w.f.Close() }

// RotateSpecKind selects whether a RotateSpec rotates by size or by time.
type RotateSpecKind int

const (
	RotateBySize RotateSpecKind = iota
	RotateByTime
)

// RotateSpec describes a rotation policy: either size-based (after N
// bytes) or time-based (every duration), with nbackup old generations
// kept around as path.1, path.2, ... path.nbackup.
type RotateSpec struct {
	Kind    RotateSpecKind
	Bytes   int64         // valid when Kind == RotateBySize
	Every   time.Duration // valid when Kind == RotateByTime
	NBackup int
	raw     string
}

func (r RotateSpec) String() string { return r.raw }

// ParseRotateSpec parses a "<N>(KB|MB|GB|sec|min|hour|day).<nbackup>"
// rotation spec, as accepted by the --rotate CLI flag.
func ParseRotateSpec(text string) (RotateSpec, error) {
	bad := func() (RotateSpec, error) {
		return RotateSpec{}, fmt.Errorf("sched: invalid --rotate spec %q", text)
	}

	i := strings.LastIndex(text, ".")
	if i == -1 {
		return bad()
	}
	head, tail := text[:i], text[i+1:]
	nbackup, err := strconv.Atoi(tail)
	if err != nil || nbackup < 0 {
		return bad()
	}

	units := []struct {
		suffix string
		kind   RotateSpecKind
		unit   float64 // bytes-per-unit or seconds-per-unit
	}{
		{"KB", RotateBySize, 1 << 10},
		{"MB", RotateBySize, 1 << 20},
		{"GB", RotateBySize, 1 << 30},
		{"sec", RotateByTime, 1},
		{"min", RotateByTime, 60},
		{"hour", RotateByTime, 3600},
		{"day", RotateByTime, 86400},
	}
	for _, u := range units {
		if strings.HasSuffix(head, u.suffix) {
			numText := head[:len(head)-len(u.suffix)]
			n, err := strconv.ParseFloat(numText, 64)
			if err != nil || n <= 0 {
				return bad()
			}
			spec := RotateSpec{Kind: u.kind, NBackup: nbackup, raw: text}
			if u.kind == RotateBySize {
				spec.Bytes = int64(n * u.unit)
			} else {
				spec.Every = time.Duration(n * u.unit * float64(time.Second))
			}
			return spec, nil
		}
	}
	return bad()
}

// RotatingWriter is a Writer that rotates path to path.1 (shifting older
// generations down to path.nbackup, dropping anything older) once size or
// time thresholds are exceeded. Rotation itself only happens when the
// scheduler calls Rotate, always right after a "pre-logrotate" sync was
// written — see Scheduler.emitSync.
type RotatingWriter struct {
	path string
	spec RotateSpec

	f         *os.File
	written   int64
	opened    time.Time
}

// NewRotatingWriter opens (creating/appending) path under the given
// rotation policy.
func NewRotatingWriter(path string, spec RotateSpec) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, spec: spec}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("sched: open %s: %w", w.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.f = f
	w.written = fi.Size()
	w.opened = time.Now()
	return nil
}

func (w *RotatingWriter) WriteLine(line string) error {
	n, err := w.f.WriteString(line + "\n")
	w.written += int64(n)
	if err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *RotatingWriter) NeedRotate() bool {
	switch w.spec.Kind {
	case RotateBySize:
		return w.written >= w.spec.Bytes
	case RotateByTime:
		return time.Since(w.opened) >= w.spec.Every
	}
	return false
}

func (w *RotatingWriter) Rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	if w.spec.NBackup >= 1 {
		os.Remove(w.generation(w.spec.NBackup))
	}
	for i := w.spec.NBackup - 1; i >= 1; i-- {
		src := w.generation(i)
		dst := w.generation(i + 1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if w.spec.NBackup >= 1 {
		if err := os.Rename(w.path, w.generation(1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return w.open()
}

func (w *RotatingWriter) generation(i int) string {
	if i == 0 {
		return w.path
	}
	return fmt.Sprintf("%s.%d", w.path, i)
}

func (w *RotatingWriter) RotateSpec() string { return w.spec.raw }
func (w *RotatingWriter) Close() error       { return w.f.Close() }
