package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/miradorstack/fleetwatch/internal/models"
	"github.com/miradorstack/fleetwatch/internal/utils"
)

// FileWriter writes the merged event sequence to a single text artifact.
type FileWriter struct {
	Path string
}

// NewFileWriter returns a writer targeting path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{Path: path}
}

// WriteEvents renders events into Path. An empty sequence leaves the filesystem
// untouched. The file is staged next to the target and renamed into place.
func (w *FileWriter) WriteEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(w.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.Path)+".*")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	if err := Render(buf, events); err != nil {
		tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.Path); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// Render writes events as a literal list of mappings:
//
//	[{'oper_datetime': '2024-01-01 00:00:00', 'fleet_id': 'F1', 'car_no': 1, 'event_no': '과전류 검지'}]
func Render(w io.Writer, events []models.Event) error {
	var b strings.Builder
	b.WriteByte('[')
	for i, ev := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("{'oper_datetime': ")
		b.WriteString(quote(utils.FormatOperDatetime(ev.OperDatetime)))
		b.WriteString(", 'fleet_id': ")
		b.WriteString(quote(ev.FleetID))
		b.WriteString(", 'car_no': ")
		b.WriteString(strconv.Itoa(int(ev.CarNo)))
		b.WriteString(", 'event_no': ")
		b.WriteString(quote(ev.EventNo.Label()))
		b.WriteByte('}')
	}
	b.WriteByte(']')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// quote renders s as a single-quoted literal, switching to double quotes when
// s holds a single quote and no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == utf8.RuneError, unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
