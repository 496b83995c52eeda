package filetools

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxReadBytes bounds read_file output.
	DefaultMaxReadBytes = 200000

	// DefaultMaxSearchResults bounds search_in_files output.
	DefaultMaxSearchResults = 50

	backupDir = ".loom-backups"
)

// skipDirs are never listed, searched, or scanned.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	backupDir:      true,
}

// Provider performs file operations scoped to a project root.
type Provider struct {
	root string
}

// NewProvider creates a provider rooted at root.
func NewProvider(root string) (*Provider, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("project root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}

	return &Provider{root: filepath.Clean(abs)}, nil
}

// Root returns the project root.
func (p *Provider) Root() string {
	return p.root
}

// resolve maps a tool-supplied path onto the project root, rejecting
// anything that escapes it.
func (p *Provider) resolve(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}

	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(p.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(p.root, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the project root", pathValue)
	}
	return candidate, nil
}

// ReadFile reads a file's content up to maxBytes (DefaultMaxReadBytes when
// maxBytes <= 0) and reports whether it was cut short.
func (p *Provider) ReadFile(pathValue string, maxBytes int64) (string, bool, error) {
	target, err := p.resolve(pathValue)
	if err != nil {
		return "", false, err
	}

	file, err := os.Open(target)
	if err != nil {
		return "", false, err
	}
	defer file.Close()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}

	var buf bytes.Buffer
	truncated := false
	if _, err := io.CopyN(&buf, file, maxBytes); err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	extra := make([]byte, 1)
	if _, err := file.Read(extra); err == nil {
		truncated = true
	}

	return buf.String(), truncated, nil
}

// ListFiles returns project-relative file paths, optionally filtered by a
// base-name glob pattern, in sorted order.
func (p *Provider) ListFiles(pattern string) ([]string, error) {
	files := []string{}

	err := filepath.Walk(p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDirs[info.Name()] && path != p.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}

		if pattern != "" {
			matched, err := filepath.Match(pattern, filepath.Base(rel))
			if err != nil {
				return fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Match is one search_in_files hit.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Search finds lines containing query, starting at directory (project root
// when empty), stopping after maxResults hits.
func (p *Provider) Search(query, directory string, maxResults int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxSearchResults
	}

	start := p.root
	if directory != "" {
		resolved, err := p.resolve(directory)
		if err != nil {
			return nil, err
		}
		start = resolved
	}

	matches := []Match{}
	errStop := errors.New("enough results")

	err := filepath.Walk(start, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDirs[info.Name()] && path != start {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("Skipping unreadable file in search")
			return nil
		}
		if bytes.ContainsRune(data, 0) {
			return nil
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}

		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, Match{
					Path: rel,
					Line: i + 1,
					Text: strings.TrimRight(line, "\r"),
				})
				if len(matches) >= maxResults {
					return errStop
				}
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	return matches, nil
}

// WriteInfo reports what write_file_safe did.
type WriteInfo struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	BackupPath   string `json:"backup_path,omitempty"`
}

// WriteFileSafe replaces a file's content, backing up the previous content
// first. BackupPath is empty when the file did not exist.
func (p *Provider) WriteFileSafe(pathValue, content string) (*WriteInfo, error) {
	target, err := p.resolve(pathValue)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(p.root, target)
	if err != nil {
		return nil, err
	}

	info := &WriteInfo{Path: rel}

	if prev, err := os.ReadFile(target); err == nil {
		backupPath := filepath.Join(p.root, backupDir, fmt.Sprintf("%s.%s", rel, time.Now().UTC().Format("20060102T150405.000")))
		if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup dir: %w", err)
		}
		if err := os.WriteFile(backupPath, prev, 0644); err != nil {
			return nil, fmt.Errorf("failed to back up %s: %w", rel, err)
		}
		backupRel, err := filepath.Rel(p.root, backupPath)
		if err != nil {
			return nil, err
		}
		info.BackupPath = backupRel
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read existing %s: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", rel, err)
	}

	info.BytesWritten = len(content)
	return info, nil
}
