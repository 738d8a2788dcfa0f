// Package report writes run artifacts: duplicate listings and rendered
// command files.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/render"
)

// TimestampLayout is used in duplicate listing file names.
const TimestampLayout = "2006-01-02-150405"

// Writer stores artifacts under a base URL. Plain paths are local
// directories; any afs scheme (mem://, s3://, gs://) works as well.
type Writer struct {
	fs   afs.Service
	base string
	now  func() time.Time
}

// NewWriter returns a Writer rooted at base.
func NewWriter(base string) *Writer {
	if base == "" {
		base = "."
	}
	if !strings.Contains(base, "://") {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
	}
	return &Writer{fs: afs.New(), base: base, now: time.Now}
}

// WriteDuplicates writes duplicates-<ts>.json: kind → name → units.
func (w *Writer) WriteDuplicates(ctx context.Context, findings *models.Findings) (string, error) {
	out := map[string]models.DuplicateRecord{}
	for kind, rec := range findings.Duplicates {
		out[kind.Plural()] = rec
	}
	return w.writeJSON(ctx, "duplicates", out)
}

// WriteNearDuplicates writes deep-dupes-<ts>.json: kind → near duplicates.
// Nothing is written when there are none.
func (w *Writer) WriteNearDuplicates(ctx context.Context, findings *models.Findings) (string, error) {
	out := map[string][]models.NearDuplicate{}
	for kind, near := range findings.NearDuplicates {
		if len(near) > 0 {
			out[kind.Plural()] = near
		}
	}
	if len(out) == 0 {
		return "", nil
	}
	return w.writeJSON(ctx, "deep-dupes", out)
}

func (w *Writer) writeJSON(ctx context.Context, prefix string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", prefix, err)
	}
	name := fmt.Sprintf("%s-%s.json", prefix, w.now().Format(TimestampLayout))
	return w.upload(ctx, name, data)
}

// WriteCommands writes set-commands-all.txt with every command in order and
// one set-commands-<kind>.txt per kind, where each object's commands are
// grouped and followed by a blank line.
func (w *Writer) WriteCommands(ctx context.Context, cmds []render.Command) ([]string, error) {
	var written []string
	all := strings.Join(render.Texts(cmds), "\n")
	if all != "" {
		all += "\n"
	}
	path, err := w.upload(ctx, "set-commands-all.txt", []byte(all))
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	kinds, groups := render.Group(cmds)
	for _, kind := range kinds {
		var buf bytes.Buffer
		for _, bunch := range groups[kind] {
			for _, c := range bunch.Commands {
				buf.WriteString(c.Text + "\n")
			}
			buf.WriteString("\n")
		}
		path, err := w.upload(ctx, fmt.Sprintf("set-commands-%s.txt", kind.Plural()), buf.Bytes())
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteRuleCommands writes set-commands-sec_rules-<unit>.txt for each unit.
func (w *Writer) WriteRuleCommands(ctx context.Context, units []string, byUnit map[string][]string) ([]string, error) {
	var written []string
	for _, unit := range units {
		lines := byUnit[unit]
		data := strings.Join(lines, "\n") + "\n"
		path, err := w.upload(ctx, fmt.Sprintf("set-commands-sec_rules-%s.txt", unit), []byte(data))
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func (w *Writer) upload(ctx context.Context, name string, data []byte) (string, error) {
	path := url.Join(w.base, name)
	if err := w.fs.Upload(ctx, path, 0o644, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
