package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Severity levels for reported issues.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue is a single finding from a scanner.
type Issue struct {
	Scanner  string `json:"scanner"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Scanner inspects files under a project root.
type Scanner interface {
	Name() string
	Scan(root string) ([]Issue, error)
}

// Builtin returns the default scanner set.
func Builtin() []Scanner {
	return []Scanner{
		&ConflictMarkerScanner{},
		&AnnotationScanner{},
		&OversizeScanner{},
	}
}

// RunAll runs every scanner over root and merges their findings, sorted by
// path then line. A scanner failure is logged and skipped rather than
// failing the whole run.
func RunAll(root string, scanners ...Scanner) ([]Issue, error) {
	if root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	if len(scanners) == 0 {
		scanners = Builtin()
	}

	issues := []Issue{}
	for _, s := range scanners {
		found, err := s.Scan(root)
		if err != nil {
			log.Warn().Str("scanner", s.Name()).Err(err).Msg("Scanner failed")
			continue
		}
		issues = append(issues, found...)
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Line < issues[j].Line
	})

	return issues, nil
}

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	".loom":         true,
	".loom-backups": true,
}

// walkFiles visits every regular text-candidate file under root, passing the
// path relative to root.
func walkFiles(root string, visit func(relPath, absPath string, info os.FileInfo) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return visit(rel, path, info)
	})
}

// scanLines reads a file line by line. Lines longer than bufio's default get
// a widened buffer rather than an error.
func scanLines(path string, visit func(lineNo int, line string)) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		visit(lineNo, sc.Text())
	}
	return sc.Err()
}

// looksBinary is a cheap text heuristic: NUL in the first chunk.
func looksBinary(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return true
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	return strings.ContainsRune(string(buf[:n]), 0)
}
