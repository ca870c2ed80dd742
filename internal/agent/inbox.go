package agent

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"fieldscan/internal/fileutil"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/scans"
)

const (
	processedDirName = "processed"
	failedDirName    = "failed"

	// defaultSettle is how long a file must stay unchanged before it is read.
	defaultSettle = 500 * time.Millisecond
)

// scanQueuer queues ADD mutations.
type scanQueuer interface {
	QueueAdd(ctx context.Context, req scans.AddRequest) (*queue.Mutation, error)
}

// importer queues scanner exports dropped into the inbox directory. Each
// *.csv file holds rows of row_id,code,order_in_row,user_id,timestamp,lat,lon
// with an optional header; every column after code may be blank.
type importer struct {
	dir    string
	scans  scanQueuer
	logger *slog.Logger
	settle time.Duration

	mu      sync.Mutex
	running bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

func newImporter(dir string, svc scanQueuer, logger *slog.Logger) *importer {
	return &importer{
		dir:    dir,
		scans:  svc,
		logger: logging.NewComponentLogger(logger, "inbox"),
		settle: defaultSettle,
	}
}

// Start imports files already waiting in the inbox and then watches it.
func (im *importer) Start(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return errors.New("inbox importer already running")
	}

	for _, dir := range []string{im.dir, filepath.Join(im.dir, processedDirName), filepath.Join(im.dir, failedDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create inbox directory %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := watcher.Add(im.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch inbox %s: %w", im.dir, err)
	}

	im.watcher = watcher
	im.done = make(chan struct{})
	im.running = true

	im.wg.Add(1)
	go func() {
		defer im.wg.Done()
		im.importExisting(ctx)
		im.processEvents(ctx)
	}()
	im.logger.Info("watching inbox", logging.String("dir", im.dir))
	return nil
}

// Stop closes the watcher and waits for the current import to finish.
func (im *importer) Stop() {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return
	}
	im.running = false
	close(im.done)
	_ = im.watcher.Close()
	im.mu.Unlock()
	im.wg.Wait()
}

func (im *importer) importExisting(ctx context.Context) {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		im.logger.Warn("failed to list inbox", logging.Error(err))
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && isInboxFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		im.importFile(ctx, filepath.Join(im.dir, name))
	}
}

func (im *importer) processEvents(ctx context.Context) {
	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-im.done:
			return
		case path := <-ready:
			delete(timers, path)
			im.importFile(ctx, path)
		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(event.Name) != filepath.Clean(im.dir) || !isInboxFile(filepath.Base(event.Name)) {
				continue
			}
			if t, ok := timers[event.Name]; ok {
				t.Reset(im.settle)
				continue
			}
			path := event.Name
			timers[path] = time.AfterFunc(im.settle, func() {
				select {
				case ready <- path:
				case <-im.done:
				}
			})
		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.logger.Warn("inbox watcher error", logging.Error(err))
		}
	}
}

func isInboxFile(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".csv")
}

// importFile parses the whole file before queuing anything, so a malformed
// file is moved to failed without partial imports. Each row carries an id
// derived from the file content, so dropping a file in again after a
// mid-file failure skips rows that were already queued or synced.
func (im *importer) importFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		// Already moved by an earlier event for the same file.
		return
	}

	requests, err := parseInboxFile(path)
	if err != nil {
		im.fail(path, err, 0)
		return
	}

	queued := 0
	for _, req := range requests {
		if _, err := im.scans.QueueAdd(ctx, req); err != nil {
			im.fail(path, err, queued)
			return
		}
		queued++
	}

	if err := moveInto(path, filepath.Join(im.dir, processedDirName)); err != nil {
		im.logger.Warn("failed to archive imported inbox file", logging.String("file", path), logging.Error(err))
	}
	im.logger.Info("imported scanner export",
		logging.String("file", filepath.Base(path)),
		logging.Int("scans", queued),
	)
}

func (im *importer) fail(path string, err error, queued int) {
	logging.WarnWithContext(im.logger, "inbox import failed", "inbox_import_failed",
		logging.String("file", filepath.Base(path)),
		logging.Int("queued_before_failure", queued),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "drop the file into the inbox again once the cause is fixed"),
		logging.String(logging.FieldImpact, "remaining scans from this file are not queued"),
	)
	if moveErr := moveInto(path, filepath.Join(im.dir, failedDirName)); moveErr != nil {
		im.logger.Warn("failed to move inbox file", logging.String("file", path), logging.Error(moveErr))
	}
}

func parseInboxFile(path string) ([]scans.AddRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open inbox file: %w", err)
	}
	digest := sha256.Sum256(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var requests []scans.AddRequest
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "row_id") {
			continue
		}
		req, err := parseInboxRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		req.MutationID = inboxMutationID(digest, line)
		requests = append(requests, req)
	}
	if len(requests) == 0 {
		return nil, errors.New("no scans in file")
	}
	return requests, nil
}

func parseInboxRecord(record []string) (scans.AddRequest, error) {
	if len(record) < 2 {
		return scans.AddRequest{}, errors.New("expected at least row_id and code")
	}
	if len(record) > 7 {
		return scans.AddRequest{}, fmt.Errorf("expected at most 7 columns, got %d", len(record))
	}
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	req := scans.AddRequest{
		RowID:  field(0),
		Code:   field(1),
		UserID: field(3),
	}
	if req.RowID == "" || req.Code == "" {
		return req, errors.New("row_id and code are required")
	}
	if v := field(2); v != "" {
		order, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("order_in_row %q: %w", v, err)
		}
		req.OrderInRow = order
	}
	if v := field(4); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, fmt.Errorf("timestamp %q: %w", v, err)
		}
		req.Timestamp = &ts
	}
	lat, err := parseCoordinate(field(5))
	if err != nil {
		return req, fmt.Errorf("lat: %w", err)
	}
	lon, err := parseCoordinate(field(6))
	if err != nil {
		return req, fmt.Errorf("lon: %w", err)
	}
	req.Latitude, req.Longitude = lat, lon
	return req, nil
}

func parseCoordinate(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func moveInto(path, dir string) error {
	_, err := fileutil.MoveInto(path, dir)
	return err
}

// inboxNamespace scopes name-based mutation ids for inbox imports.
var inboxNamespace = uuid.MustParse("5b0f7c1e-3a43-4f7e-9a55-2f4c8d0e6a11")

// inboxMutationID names the record at position line of a file with the
// given content digest.
func inboxMutationID(digest [sha256.Size]byte, line int) string {
	return uuid.NewSHA1(inboxNamespace, fmt.Appendf(nil, "%x:%d", digest, line)).String()
}
