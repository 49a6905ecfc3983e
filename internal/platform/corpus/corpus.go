// Package corpus collects clinical documents from the local filesystem
// for batch analysis.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/rs/zerolog"
)

// DefaultMaxFileSize bounds a single document, after decompression.
const DefaultMaxFileSize = 10 << 20

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

var documentExts = map[string]bool{
	".xml": true,
	".cda": true,
}

// File is one loaded document. Name is what the parser reports in errors:
// the path relative to the directory it was found under, or the base name
// for files given directly, without any .gz suffix.
type File struct {
	Name    string
	Path    string
	Content string
}

// Skipped is a file that was seen but not loaded.
type Skipped struct {
	Path string
	Err  error
}

type Result struct {
	Files   []File
	Skipped []Skipped
}

type Options struct {
	// MaxFileSize defaults to DefaultMaxFileSize when zero.
	MaxFileSize int64
	Logger      zerolog.Logger
}

type candidate struct {
	path string
	name string
}

// Load walks paths (files or directories, recursively) and reads every
// .xml or .cda document, gzipped or not, in lexical path order. Oversized
// or unreadable files are reported in Result.Skipped. Files with other
// extensions are ignored inside directories and reported when named
// directly. A path that does not exist is an error.
func Load(ctx context.Context, paths []string, opts Options) (*Result, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	logger := opts.Logger.With().Str("component", "corpus").Logger()

	res := &Result{Files: []File{}, Skipped: []Skipped{}}
	seen := make(map[string]bool)
	var found []candidate

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if !isDocument(root) {
				res.Skipped = append(res.Skipped, Skipped{Path: root, Err: ErrUnsupportedFile})
				continue
			}
			found = append(found, candidate{path: root, name: documentName(filepath.Base(root))})
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !isDocument(path) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = filepath.Base(path)
			}
			found = append(found, candidate{path: path, name: documentName(filepath.ToSlash(rel))})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].path < found[j].path })

	for _, c := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(c.path)
		if err != nil {
			abs = c.path
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		content, err := readDocument(c.path, opts.MaxFileSize)
		if err != nil {
			logger.Warn().Str("path", c.path).Err(err).Msg("skipping file")
			res.Skipped = append(res.Skipped, Skipped{Path: c.path, Err: err})
			continue
		}
		res.Files = append(res.Files, File{Name: c.name, Path: c.path, Content: content})
	}

	logger.Debug().
		Int("files", len(res.Files)).
		Int("skipped", len(res.Skipped)).
		Msg("corpus loaded")
	return res, nil
}

func isDocument(path string) bool {
	lower := strings.ToLower(path)
	lower = strings.TrimSuffix(lower, ".gz")
	return documentExts[filepath.Ext(lower)]
}

func documentName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		return name[:len(name)-len(".gz")]
	}
	return name
}

func readDocument(path string, maxSize int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	} else if info, err := f.Stat(); err == nil && info.Size() > maxSize {
		return "", fmt.Errorf("%s is %d bytes: %w", path, info.Size(), ErrFileTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%s exceeds %d bytes: %w", path, maxSize, ErrFileTooLarge)
	}
	return string(data), nil
}
