package file

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// ─────────────────────────────────────────────────────────────────────────────
// RotateConfig
// ─────────────────────────────────────────────────────────────────────────────

// RotateConfig controls size-based rotation.
type RotateConfig struct {
	// FilePath is the active file (required). Its parent directory is
	// created when missing.
	FilePath string

	// MaxBytes rotates the active file before a write would take it past
	// this size. Zero disables rotation.
	MaxBytes int64

	// MaxBackups is the number of rotated files kept as FilePath.1 (newest)
	// through FilePath.N. Zero keeps every backup.
	MaxBackups int
}

// ─────────────────────────────────────────────────────────────────────────────
// RotatingFile
// ─────────────────────────────────────────────────────────────────────────────

// RotatingFile is an io.WriteCloser over FilePath that rotates by size. It is
// safe for concurrent use.
type RotatingFile struct {
	mu     sync.Mutex
	cfg    RotateConfig
	file   *os.File
	size   int64
	logger *slog.Logger
}

// NewRotatingFile opens FilePath for appending.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("transport/file: rotate: FilePath is required")
	}
	if cfg.MaxBytes < 0 || cfg.MaxBackups < 0 {
		return nil, fmt.Errorf("transport/file: rotate: negative limits")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if dir := filepath.Dir(cfg.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("transport/file: rotate: mkdir %s: %w", dir, err)
		}
	}
	rf := &RotatingFile{cfg: cfg, logger: logger}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write appends p, rotating first when p would overflow MaxBytes. A record
// larger than MaxBytes still lands in a fresh file of its own. A failed
// rotation keeps writing to the current file.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return 0, fmt.Errorf("transport/file: rotate: %s is closed", rf.cfg.FilePath)
	}
	if rf.cfg.MaxBytes > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			rf.logger.Error("transport/file: rotate failed", "file", rf.cfg.FilePath, "error", err.Error())
			if rf.file == nil {
				return 0, err
			}
		}
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Size returns the size of the active file.
func (rf *RotatingFile) Size() int64 {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.size
}

// Close closes the active file. Further writes fail.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport/file: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport/file: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// rotate shifts FilePath.i to FilePath.i+1 (newest first, so nothing is
// overwritten), moves the active file to FilePath.1 and reopens.
func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		rf.logger.Warn("transport/file: rotate: close error", "error", err.Error())
	}
	rf.file = nil

	base := rf.cfg.FilePath
	backups := rf.backups()
	for i := len(backups) - 1; i >= 0; i-- {
		n := backups[i]
		if rf.cfg.MaxBackups > 0 && n >= rf.cfg.MaxBackups {
			_ = os.Remove(backupName(base, n))
			continue
		}
		if err := os.Rename(backupName(base, n), backupName(base, n+1)); err != nil {
			rf.logger.Warn("transport/file: rotate: shift error", "error", err.Error())
		}
	}
	renameErr := os.Rename(base, backupName(base, 1))
	if renameErr != nil && !os.IsNotExist(renameErr) {
		rf.logger.Warn("transport/file: rotate: rename error", "error", renameErr.Error())
	}

	rf.logger.Info("transport/file: rotated",
		"file", base,
		"size", humanize.IBytes(uint64(rf.size)),
	)
	return rf.open()
}

// backups returns the existing backup numbers in ascending order.
func (rf *RotatingFile) backups() []int {
	prefix := rf.cfg.FilePath + "."
	matches, _ := filepath.Glob(escapeGlob(rf.cfg.FilePath) + ".*")
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(m, prefix))
		if err == nil && n > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func backupName(base string, n int) string {
	return base + "." + strconv.Itoa(n)
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
