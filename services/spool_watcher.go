package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// SpoolWatcher ingests batches that the acquisition side drops into a
// directory. Each *.json file holds an array of documents. A file is
// ingested again only when its content hash changes.
type SpoolWatcher struct {
	dir    string
	ingest *IngestionService
	log    logrus.FieldLogger

	mu     sync.Mutex
	hashes map[string]string
}

func NewSpoolWatcher(dir string, ingest *IngestionService, log logrus.FieldLogger) *SpoolWatcher {
	return &SpoolWatcher{
		dir:    dir,
		ingest: ingest,
		log:    logging.Component(log, "spool"),
		hashes: make(map[string]string),
	}
}

// Run scans the directory once and then watches it until ctx is done.
func (w *SpoolWatcher) Run(ctx context.Context) error {
	if _, err := w.Scan(ctx); err != nil {
		return err
	}
	return w.Watch(ctx)
}

// Scan ingests every new or changed spool file and returns the number of
// documents indexed.
func (w *SpoolWatcher) Scan(ctx context.Context) (int, error) {
	w.log.WithField("dir", w.dir).Info("INDEXER: starting spool scan")
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("listing spool dir %s: %w", w.dir, err)
	}
	sort.Strings(matches)

	total := 0
	for _, path := range matches {
		n, err := w.processFile(ctx, path)
		if err != nil {
			w.log.WithError(err).WithField("file", path).Error("INDEXER ERROR: failed to process spool file")
			continue
		}
		total += n
	}
	w.log.WithField("indexed", total).Info("INDEXER: spool scan finished")
	return total, ctx.Err()
}

// Watch blocks, ingesting spool files as they are created or rewritten.
func (w *SpoolWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}
	w.log.WithField("dir", w.dir).Info("WATCHER: watching spool directory")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSpoolFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.log.WithField("file", event.Name).Debug("WATCHER: spool file created/modified")
				if _, err := w.processFile(ctx, event.Name); err != nil {
					w.log.WithError(err).WithField("file", event.Name).Error("WATCHER ERROR: failed to process spool file")
				}
			} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// Indexed documents stay; only the hash is forgotten.
				w.forget(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("WATCHER ERROR")
		case <-ctx.Done():
			w.log.Info("WATCHER: context cancelled, shutting down watcher")
			return nil
		}
	}
}

func (w *SpoolWatcher) processFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	w.mu.Lock()
	unchanged := w.hashes[path] == hash
	w.mu.Unlock()
	if unchanged {
		return 0, nil
	}

	var docs []models.Document
	if err := json.Unmarshal(content, &docs); err != nil {
		// Partially written files fail here and are picked up on the next write.
		return 0, fmt.Errorf("decoding %s: %w", path, err)
	}
	n, err := w.ingest.Ingest(ctx, docs)
	if err != nil {
		return n, err
	}

	w.mu.Lock()
	w.hashes[path] = hash
	w.mu.Unlock()
	w.log.WithField("file", filepath.Base(path)).WithField("indexed", n).Info("INDEXER: spool file ingested")
	return n, nil
}

func (w *SpoolWatcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.hashes, path)
}

func isSpoolFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
