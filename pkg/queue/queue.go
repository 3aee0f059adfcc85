// Package queue implements the durable offline queue for scan records.
//
// The queue is an append-only JSONL file on persistent storage: one record
// per line, file order is arrival order. It is bounded; at capacity the
// oldest entry is evicted to make room. Startup detects power-loss
// corruption by file size and recovers destructively. All rebuilds are
// stream-based: at most one line is buffered in memory at a time.
//
// The queue is shared between the foreground submission path and the
// background sync task. Every operation that touches the file holds the
// storage Locker for its full duration; the in-memory size cache has its
// own cheaper mutex because it is read far more often than the file is
// mutated.
package queue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/scan"
)

// Queue errors. All are non-fatal to the device: the triggering operation
// is abandoned and retried on its next natural trigger.
var (
	// ErrCorrupted is returned by Initialize after a corrupted queue file
	// was deleted and the queue reset.
	ErrCorrupted = errors.New("queue file corrupted")

	// ErrLockTimeout means the storage lock could not be acquired in time.
	ErrLockTimeout = errors.New("storage lock timeout")

	// ErrUploadFailed means the upload callback of DrainBatch reported
	// failure; the batch stays queued.
	ErrUploadFailed = errors.New("batch upload failed")
)

// Config holds the tunables of the durable queue. The defaults suit a
// device that scans at human speed and syncs every few seconds.
type Config struct {
	// Path is the queue file location.
	Path string

	// Capacity is the maximum number of queued records. At capacity the
	// oldest record is evicted; a new record is never rejected.
	Capacity int

	// MaxFileBytes is the corruption threshold: a queue file larger than
	// this at startup is implausible for the bounded capacity and treated
	// as a partial-write artifact from a prior power loss.
	MaxFileBytes int64

	// LockTimeout bounds lock acquisition for appends.
	LockTimeout time.Duration

	// RebuildTimeout bounds lock acquisition for rebuild-class operations
	// (initialize, head removal, drain, clear).
	RebuildTimeout time.Duration
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 100
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 100 << 10 // 100KB
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 500 * time.Millisecond
	}
	if c.RebuildTimeout <= 0 {
		c.RebuildTimeout = 2 * time.Second
	}
}

// Queue is a bounded durable FIFO log of scan records.
type Queue struct {
	path    string
	tmpPath string
	cfg     Config
	lock    Locker
	logger  log.Logger

	// size caches the on-disk line count. Ground truth is the file;
	// Initialize recomputes so drift cannot survive a reboot.
	sizeMu sync.Mutex
	size   int
}

// New creates a queue over the given file path. The Locker must be the
// lock guarding the storage resource the path lives on; callers sharing
// storage with other components share one Locker.
func New(cfg Config, lock Locker, logger log.Logger) *Queue {
	cfg.SetDefaults()
	if lock == nil {
		lock = NewStorageLock()
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Queue{
		path:    cfg.Path,
		tmpPath: cfg.Path + ".tmp",
		cfg:     cfg,
		lock:    lock,
		logger:  logger,
	}
}

// Size returns the cached entry count.
func (q *Queue) Size() int {
	q.sizeMu.Lock()
	defer q.sizeMu.Unlock()
	return q.size
}

func (q *Queue) setSize(n int) {
	q.sizeMu.Lock()
	q.size = n
	q.sizeMu.Unlock()
}

func (q *Queue) addSize(delta int) {
	q.sizeMu.Lock()
	q.size += delta
	if q.size < 0 {
		q.size = 0
	}
	q.sizeMu.Unlock()
}

// Initialize validates the queue file and seeds the size cache from disk.
// Must be called once after storage is available, before any other
// operation. A missing file is an empty queue. A file above the corruption
// threshold is deleted and ErrCorrupted returned; the queue is usable
// (empty) afterwards.
func (q *Queue) Initialize() error {
	if !q.lock.Acquire("initialize", q.cfg.RebuildTimeout) {
		q.logger.Error("queue init: storage lock timeout")
		return ErrLockTimeout
	}
	defer q.lock.Release()

	fi, err := os.Stat(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		// A leftover temp file means a head removal was interrupted
		// between delete and rename; the temp file is the queue.
		if _, terr := os.Stat(q.tmpPath); terr == nil {
			if rerr := os.Rename(q.tmpPath, q.path); rerr != nil {
				q.setSize(0)
				return fmt.Errorf("adopt interrupted rebuild: %w", rerr)
			}
			q.logger.Warn("queue init: adopted interrupted rebuild", log.String("path", q.path))
			return q.recount()
		}
		q.setSize(0)
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat queue file: %w", err)
	}
	_ = os.Remove(q.tmpPath)

	if fi.Size() > q.cfg.MaxFileBytes {
		q.logger.Error("queue init: corruption detected, deleting queue file",
			log.Int64("size", fi.Size()),
			log.Int64("threshold", q.cfg.MaxFileBytes),
		)
		if rerr := os.Remove(q.path); rerr != nil {
			return fmt.Errorf("delete corrupted queue file: %w", rerr)
		}
		q.setSize(0)
		return ErrCorrupted
	}

	return q.recount()
}

// newScanner returns a line scanner whose token limit covers the worst
// partial-write artifact the size check admits. The whole file fits under
// MaxFileBytes, so one junk line can be at most that long; the default
// 64KB scanner limit would turn such a line into a fatal read error
// instead of one more skipped malformed line.
func (q *Queue) newScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), int(q.cfg.MaxFileBytes)+1)
	return sc
}

// recount streams the file and sets the size cache to the count of
// non-blank lines. Caller holds the lock.
func (q *Queue) recount() error {
	f, err := os.Open(q.path)
	if err != nil {
		return fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	n := 0
	sc := q.newScanner(f)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("count queue entries: %w", err)
	}
	q.setSize(n)
	q.logger.Info("queue initialized", log.Int("entries", n))
	return nil
}

// Append serializes the record and appends it as one JSON line, flushed
// durably. At capacity, exactly one oldest entry is evicted first; the new
// record is never rejected for fullness. I/O failure drops the record with
// a logged error and leaves the size cache unchanged; Append does not
// retry internally.
func (q *Queue) Append(rec scan.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if q.Size() >= q.cfg.Capacity {
		q.logger.Warn("queue full, evicting oldest entry",
			log.Int("size", q.Size()),
			log.Int("capacity", q.cfg.Capacity),
		)
		if err := q.RemoveHead(1); err != nil {
			q.logger.Error("evict oldest entry", log.Err(err))
		}
	}

	if !q.lock.Acquire("append", q.cfg.LockTimeout) {
		q.logger.Error("queue append: storage lock timeout, record dropped",
			log.String("tokenId", rec.TokenID))
		return ErrLockTimeout
	}
	defer q.lock.Release()

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		q.logger.Error("queue append: open failed, record dropped", log.Err(err))
		return fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		q.logger.Error("queue append: write failed, record dropped", log.Err(err))
		return fmt.Errorf("write queue entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		q.logger.Error("queue append: sync failed, record dropped", log.Err(err))
		return fmt.Errorf("sync queue file: %w", err)
	}

	q.addSize(1)
	return nil
}

// readBatch stream-reads up to max well-formed records from the head of
// the file. Malformed lines are counted as skipped but not removed.
// Caller must hold the storage lock.
func (q *Queue) readBatch(max int) (batch []scan.Record, skipped int, err error) {
	f, err := os.Open(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	sc := q.newScanner(f)
	for len(batch) < max && sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec scan.Record
		if uerr := json.Unmarshal(line, &rec); uerr != nil || !rec.Valid() {
			skipped++
			continue
		}
		batch = append(batch, rec)
	}
	if serr := sc.Err(); serr != nil {
		return batch, skipped, fmt.Errorf("read queue batch: %w", serr)
	}
	return batch, skipped, nil
}

// RemoveHead removes the first k entries by streaming every later line
// into a temp file and atomically replacing the original. The size cache
// is decremented by the number of lines actually removed, clamped at zero.
func (q *Queue) RemoveHead(k int) error {
	if k <= 0 {
		return nil
	}
	if !q.lock.Acquire("removeHead", q.cfg.RebuildTimeout) {
		q.logger.Error("queue removeHead: storage lock timeout")
		return ErrLockTimeout
	}
	defer q.lock.Release()

	return q.removeHeadLocked(k)
}

// removeHeadLocked does the stream rebuild. Caller holds the storage lock.
func (q *Queue) removeHeadLocked(k int) error {
	src, err := os.Open(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open queue file: %w", err)
	}
	defer src.Close()

	tmp, err := os.OpenFile(q.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer tmp.Close()

	removed := 0
	kept := 0
	w := bufio.NewWriter(tmp)
	sc := q.newScanner(src)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if removed < k {
			removed++
			continue
		}
		if _, werr := w.Write(line); werr != nil {
			return fmt.Errorf("write temp file: %w", werr)
		}
		if werr := w.WriteByte('\n'); werr != nil {
			return fmt.Errorf("write temp file: %w", werr)
		}
		kept++
	}
	if serr := sc.Err(); serr != nil {
		return fmt.Errorf("read queue file: %w", serr)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	// The temp file is durable before the original goes away, so a crash
	// here leaves a complete copy for Initialize to adopt.
	if err := os.Remove(q.path); err != nil {
		return fmt.Errorf("remove queue file: %w", err)
	}
	if err := os.Rename(q.tmpPath, q.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	q.addSize(-removed)
	q.logger.Debug("queue head removed",
		log.Int("removed", removed),
		log.Int("kept", kept),
	)
	return nil
}

// DrainBatch reads up to max records from the head, hands them to upload,
// and on success removes them, all under a single lock acquisition, so
// the read head and the removed head are the same lines. Returns the
// number of records removed. An empty queue returns (0, nil). A failed
// upload returns (0, ErrUploadFailed) and leaves the file untouched.
//
// Lines the reader skipped as malformed sit before the last uploaded
// record, so head removal counts them out of the file along with the
// batch; a record resent because of this is suppressed server-side.
func (q *Queue) DrainBatch(max int, upload func([]scan.Record) bool) (int, error) {
	if !q.lock.Acquire("drainBatch", q.cfg.RebuildTimeout) {
		q.logger.Error("queue drain: storage lock timeout")
		return 0, ErrLockTimeout
	}
	defer q.lock.Release()

	batch, skipped, err := q.readBatch(max)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		q.logger.Warn("queue drain: skipped malformed entries", log.Int("skipped", skipped))
	}
	if len(batch) == 0 {
		if skipped > 0 {
			// Nothing sendable in the head region; drop the junk so the
			// queue does not wedge on it.
			if err := q.removeHeadLocked(skipped); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	if !upload(batch) {
		return 0, ErrUploadFailed
	}

	if err := q.removeHeadLocked(len(batch) + skipped); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// Clear deletes the queue file and resets the cache. Operator-invoked only.
func (q *Queue) Clear() error {
	if !q.lock.Acquire("clear", q.cfg.RebuildTimeout) {
		q.logger.Error("queue clear: storage lock timeout")
		return ErrLockTimeout
	}
	defer q.lock.Release()

	if err := os.Remove(q.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove queue file: %w", err)
	}
	q.setSize(0)
	q.logger.Info("queue cleared")
	return nil
}
