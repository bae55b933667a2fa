// Package inbox imports progress spreadsheets dropped into a directory.
// Each file is imported once through progress.Importer and then moved to
// processed/ or failed/ next to the inbox.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"srap/models"
	"srap/pkg/logger"
	"srap/pkg/progress"
)

const defaultDebounce = 300 * time.Millisecond

var extMime = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".csv":  "text/csv",
}

type Watcher struct {
	Dir       string
	Importer  *progress.Importer
	Uploader  *models.User
	FileType  models.FileType
	Overwrite bool
	Policy    progress.ErrorPolicy
	Log       *logger.Logger
	// Debounce is how long a file must stay quiet before it is picked up.
	Debounce time.Duration
}

// Outcome is what happened to one inbox file.
type Outcome struct {
	Name    string
	Upload  *models.UploadedFile
	Results progress.Results
	Err     error
}

func (w *Watcher) log() *logger.Logger {
	if w.Log == nil {
		return logger.Nop()
	}
	return w.Log
}

// Supported reports whether name looks like a spreadsheet the importer reads.
// Partial downloads and hidden files are skipped.
func Supported(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	_, ok := extMime[strings.ToLower(filepath.Ext(base))]
	return ok
}

// List returns the supported files currently in the inbox, sorted by name.
func (w *Watcher) List() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Scan imports everything already waiting in the inbox.
func (w *Watcher) Scan(ctx context.Context) ([]Outcome, error) {
	names, err := w.List()
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out = append(out, w.ProcessFile(ctx, name))
	}
	return out, nil
}

// ProcessFile imports one inbox file and moves it out of the inbox.
// Failures are recorded in failed/<name>.error.txt.
func (w *Watcher) ProcessFile(ctx context.Context, name string) Outcome {
	o := Outcome{Name: name}
	src := filepath.Join(w.Dir, name)
	f, err := os.Open(src)
	if err != nil {
		o.Err = err
		return o
	}
	res, err := w.Importer.Import(ctx, progress.ImportRequest{
		File:         f,
		Filename:     name,
		ContentType:  extMime[strings.ToLower(filepath.Ext(name))],
		DeclaredType: w.FileType,
		Overwrite:    w.Overwrite,
		Policy:       w.Policy,
		Uploader:     w.Uploader,
	})
	_ = f.Close()
	if res != nil {
		o.Upload, o.Results = res.Upload, res.Results
	}
	o.Err = err

	if errors.Is(err, context.Canceled) {
		// leave it in the inbox for the next run
		return o
	}
	if err != nil {
		w.log().Warn("inbox import failed", "file", name, "error", err)
		if mvErr := moveTo(src, filepath.Join(w.Dir, "failed"), name); mvErr != nil {
			w.log().Error("failed to move file", "file", name, "error", mvErr)
		}
		note := progress.UserMessage(err) + "\n"
		if werr := os.WriteFile(filepath.Join(w.Dir, "failed", name+".error.txt"), []byte(note), 0o644); werr != nil {
			w.log().Warn("failed to write error note", "file", name, "error", werr)
		}
		return o
	}
	w.log().Info("inbox import done", "file", name, "upload_id", o.Upload.ID,
		"success", o.Results.Success, "errors", o.Results.Errors)
	if mvErr := moveTo(src, filepath.Join(w.Dir, "processed"), name); mvErr != nil {
		w.log().Error("failed to move file", "file", name, "error", mvErr)
	}
	return o
}

// Watch scans the inbox, then imports new files as they settle until ctx is done.
// Files are imported one at a time so uploads never race on the same KPI.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return err
	}
	if _, err := w.Scan(ctx); err != nil {
		return err
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w.log().Info("watching inbox", "dir", w.Dir, "debounce", debounce)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !Supported(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			var ready []string
			for name, t := range pending {
				if now.Sub(t) >= debounce {
					ready = append(ready, name)
				}
			}
			sort.Strings(ready)
			for _, name := range ready {
				delete(pending, name)
				if _, err := os.Stat(filepath.Join(w.Dir, name)); err != nil {
					continue
				}
				w.ProcessFile(ctx, name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log().Warn("watch error", "error", err)
		}
	}
}

// moveTo moves src into dir, keeping name and adding a timestamp when the target exists.
// Falls back to copy and remove across filesystems.
func moveTo(src, dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
