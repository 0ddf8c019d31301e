// Package follow tails a JSONL file of envelopes written by a host runner.
package follow

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

// maxLineSize bounds a single envelope line
const maxLineSize = 4 << 20

// Handler receives each decoded envelope in file order
type Handler func(env protocol.EnvelopeRaw)

// Tailer follows a growing JSONL file. Writes are debounced; only complete
// lines are decoded, a trailing partial line waits for the next write.
type Tailer struct {
	path     string
	watcher  *fsnotify.Watcher
	handler  Handler
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex

	// read state, guarded by readMu
	readMu  sync.Mutex
	offset  int64
	partial []byte
	line    int

	cancel context.CancelFunc
}

// New creates a tailer for path. The file does not need to exist yet.
func New(path string, handler Handler) (*Tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	return &Tailer{
		path:     abs,
		watcher:  watcher,
		handler:  handler,
		debounce: 100 * time.Millisecond,
	}, nil
}

// SetDebounce sets the debounce duration for batching writes
func (t *Tailer) SetDebounce(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debounce = d
}

// Start reads what the file already holds and then follows new writes
func (t *Tailer) Start(ctx context.Context) error {
	// Watch the directory so creation and rotation are seen too
	if err := t.watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(t.path), err)
	}
	t.readNew()

	ctx, t.cancel = context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-t.watcher.Events:
				if !ok {
					return
				}
				t.handleEvent(event)
			case err, ok := <-t.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[follow] Watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Stop stops following the file
func (t *Tailer) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.watcher.Close()
}

// Offset returns how far into the file complete lines were consumed
func (t *Tailer) Offset() int64 {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return t.offset - int64(len(t.partial))
}

func (t *Tailer) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != t.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, t.readNew)
}

func (t *Tailer) readNew() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[follow] Open %s: %v", t.path, err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Printf("[follow] Stat %s: %v", t.path, err)
		return
	}
	if info.Size() < t.offset {
		log.Printf("[follow] %s was truncated, reading from the start", t.path)
		t.offset = 0
		t.partial = nil
		t.line = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		log.Printf("[follow] Seek %s: %v", t.path, err)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		log.Printf("[follow] Read %s: %v", t.path, err)
		return
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		t.line++
		t.emit(buf[:i], t.line)
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
}

func (t *Tailer) emit(line []byte, n int) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	env, err := protocol.ParseEnvelope(line)
	if err != nil {
		log.Printf("[follow] Skipping malformed line %d: %v", n, err)
		return
	}
	t.handler(env)
}

// ReadAll decodes every envelope of a JSONL stream. Blank lines are
// skipped; a malformed line is an error naming its line number.
func ReadAll(r io.Reader) ([]protocol.EnvelopeRaw, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var envs []protocol.EnvelopeRaw
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		env, err := protocol.ParseEnvelope(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		envs = append(envs, env)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return envs, nil
}
