package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dthille/corpusqa/pkg/types"
)

// Corpus owns the passage collection and the indexes built over it. Reload
// builds fresh indexes and swaps them in atomically, so concurrent searches
// always see a consistent pair.
type Corpus struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	passages []*types.PassageRecord
	lexical  *Lexical
	vector   *Vector
}

// NewCorpus builds a corpus from an in-memory record set.
func NewCorpus(passages []*types.PassageRecord, logger *zap.Logger) *Corpus {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Corpus{logger: logger}
	c.swap(passages)
	return c
}

// LoadCorpus reads a JSONL file of passage records and builds the indexes.
func LoadCorpus(path string, logger *zap.Logger) (*Corpus, error) {
	passages, err := readJSONL(path)
	if err != nil {
		return nil, err
	}
	c := NewCorpus(passages, logger)
	c.path = path
	c.logger.Info("corpus loaded",
		zap.String("path", path),
		zap.Int("passages", len(passages)),
		zap.Int("with_embeddings", c.Vector().Len()))
	return c, nil
}

// Lexical returns the current lexical index.
func (c *Corpus) Lexical() *Lexical {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lexical
}

// Vector returns the current vector index.
func (c *Corpus) Vector() *Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vector
}

// Passage returns the record with the given id, if present.
func (c *Corpus) Passage(id string) (*types.PassageRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.passages {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Len returns the passage count.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.passages)
}

// Reload re-reads the backing file and swaps in freshly built indexes. A read
// or parse failure leaves the current indexes untouched.
func (c *Corpus) Reload() error {
	if c.path == "" {
		return fmt.Errorf("corpus has no backing file")
	}
	passages, err := readJSONL(c.path)
	if err != nil {
		return err
	}
	c.swap(passages)
	c.logger.Info("corpus reloaded", zap.String("path", c.path), zap.Int("passages", len(passages)))
	return nil
}

// Watch reloads the corpus whenever the backing file changes, until ctx is
// cancelled. Reload failures are logged and the previous corpus stays live.
func (c *Corpus) Watch(ctx context.Context) error {
	if c.path == "" {
		return fmt.Errorf("corpus has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(c.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", c.path, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.Reload(); err != nil {
					c.logger.Warn("corpus reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("corpus watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (c *Corpus) swap(passages []*types.PassageRecord) {
	lexical := NewLexical(passages)
	vector := NewVector(passages)

	c.mu.Lock()
	c.passages = passages
	c.lexical = lexical
	c.vector = vector
	c.mu.Unlock()
}

func readJSONL(path string) ([]*types.PassageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	var passages []*types.PassageRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p types.PassageRecord
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("corpus line %d: missing passage id", line)
		}
		passages = append(passages, &p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return passages, nil
}
