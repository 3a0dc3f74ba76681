// Package ingest walks local file trees and feeds their contents into the
// knowledge engine. Document identity is derived from the absolute file
// path, so re-ingesting a tree replaces the previous version of each file
// rather than accumulating duplicates.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gofrs/flock"

	"github.com/reqflow/reqflow/internal/log"
)

// Engine defines the knowledge operations the ingester needs. Satisfied by
// knowledge.Engine.
type Engine interface {
	Ingest(ctx context.Context, documentID, projectID, filename, content string) (int, error)
}

// defaultSupportedExtensions are the file types ingested when no explicit
// list is configured.
var defaultSupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".rs":   true,
	".rb":   true,
	".sh":   true,
	".yaml": true,
	".yml":  true,
	".json": true,
	".toml": true,
	".html": true,
	".sql":  true,
}

// defaultExcludeGlobs are skipped during directory walks regardless of
// extension.
var defaultExcludeGlobs = []string{
	"**/.git",
	"**/node_modules",
	"**/vendor",
	"**/.idea",
	"**/dist",
	"**/build",
}

// MaxFileSize caps the size of a single ingested file at 1MB. Larger files
// are almost always generated artifacts, not documentation worth indexing.
const MaxFileSize = 1 << 20

// lockFileName guards concurrent ingestion runs over the same tree.
const lockFileName = ".reqflow.lock"

// Result summarizes an ingestion run.
type Result struct {
	FilesAdded   int
	FilesSkipped int
	FilesFailed  int
	ChunksStored int
	Duration     time.Duration
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithExtensions replaces the default supported extension list.
func WithExtensions(exts []string) Option {
	return func(ing *Ingester) {
		if len(exts) == 0 {
			return
		}
		m := make(map[string]bool, len(exts))
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			m[strings.ToLower(ext)] = true
		}
		ing.extensions = m
	}
}

// WithExcludeGlobs adds doublestar patterns, relative to the ingestion
// root, whose matches are skipped.
func WithExcludeGlobs(globs []string) Option {
	return func(ing *Ingester) {
		ing.excludes = append(ing.excludes, globs...)
	}
}

// Ingester feeds local files into a knowledge engine.
type Ingester struct {
	engine     Engine
	logger     log.Logger
	extensions map[string]bool
	excludes   []string
}

// New creates an Ingester.
func New(engine Engine, logger log.Logger, opts ...Option) (*Ingester, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	extMap := make(map[string]bool, len(defaultSupportedExtensions))
	for k, v := range defaultSupportedExtensions {
		extMap[k] = v
	}

	ing := &Ingester{
		engine:     engine,
		logger:     logger,
		extensions: extMap,
		excludes:   append([]string(nil), defaultExcludeGlobs...),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing, nil
}

// File ingests a single file into projectID.
func (ing *Ingester) File(ctx context.Context, projectID, filePath string) (int, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", absPath, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory, use Directory instead", absPath)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !ing.extensions[ext] {
		return 0, fmt.Errorf("unsupported file type %q", ext)
	}
	if info.Size() > MaxFileSize {
		return 0, fmt.Errorf("file %s (%d bytes) exceeds size limit (%d bytes)",
			absPath, info.Size(), MaxFileSize)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", absPath, err)
	}

	stored, err := ing.engine.Ingest(ctx, DocumentID(absPath), projectID, filepath.Base(absPath), string(content))
	if err != nil {
		return 0, fmt.Errorf("ingesting %s: %w", absPath, err)
	}
	return stored, nil
}

// Directory recursively ingests all supported files under dirPath into
// projectID. A lock file at the directory root serializes concurrent runs
// over the same tree. Individual file failures are counted and logged, not
// fatal.
func (ing *Ingester) Directory(ctx context.Context, projectID, dirPath string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving directory path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", absDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absDir)
	}

	lock := flock.New(filepath.Join(absDir, lockFileName))
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring ingestion lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("ingestion already in progress for %s", absDir)
	}
	defer func() { _ = lock.Unlock() }()

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening root directory: %w", err)
	}
	defer func() { _ = root.Close() }()

	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			result.FilesFailed++
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		if ing.excluded(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Base(path) == lockFileName {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !ing.extensions[ext] {
			result.FilesSkipped++
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Size() > MaxFileSize {
			result.FilesSkipped++
			return nil
		}

		content, err := root.ReadFile(relPath)
		if err != nil {
			ing.logger.Warn("reading file failed", "path", path, "error", err)
			result.FilesFailed++
			return nil
		}

		stored, err := ing.engine.Ingest(ctx, DocumentID(path), projectID, filepath.Base(path), string(content))
		if err != nil {
			ing.logger.Warn("ingesting file failed", "path", path, "error", err)
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.ChunksStored += stored
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absDir, err)
	}

	result.Duration = time.Since(start)
	ing.logger.Info("directory ingestion finished",
		"dir", absDir,
		"project_id", projectID,
		"added", result.FilesAdded,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed,
		"chunks", result.ChunksStored,
		"duration", result.Duration)
	return result, nil
}

// excluded reports whether relPath matches any exclude glob. Paths are
// normalized to forward slashes for doublestar.
func (ing *Ingester) excluded(relPath string) bool {
	slashed := filepath.ToSlash(relPath)
	for _, glob := range ing.excludes {
		if ok, err := doublestar.Match(glob, slashed); err == nil && ok {
			return true
		}
	}
	return false
}

// DocumentID derives a stable document identifier from a file path.
// Re-ingesting the same absolute path always targets the same document.
func DocumentID(filePath string) string {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		absPath = filePath
	}
	hash := sha256.Sum256([]byte(absPath))
	return "file_" + hex.EncodeToString(hash[:16])
}
