package scanner

import (
	"fmt"
	"os"
	"strings"
)

// ConflictMarkerScanner flags unresolved merge conflict markers.
type ConflictMarkerScanner struct{}

func (s *ConflictMarkerScanner) Name() string { return "conflict_markers" }

func (s *ConflictMarkerScanner) Scan(root string) ([]Issue, error) {
	issues := []Issue{}

	err := walkFiles(root, func(relPath, absPath string, info os.FileInfo) error {
		if looksBinary(absPath) {
			return nil
		}
		return scanLines(absPath, func(lineNo int, line string) {
			for _, marker := range []string{"<<<<<<< ", ">>>>>>> ", "======="} {
				if strings.HasPrefix(line, marker) {
					// "=======" alone is ambiguous, only report it at full width.
					if marker == "=======" && strings.TrimRight(line, "\r") != "=======" {
						continue
					}
					issues = append(issues, Issue{
						Scanner:  s.Name(),
						Path:     relPath,
						Line:     lineNo,
						Severity: SeverityError,
						Message:  fmt.Sprintf("unresolved merge conflict marker %q", strings.TrimSpace(marker)),
					})
					return
				}
			}
		})
	})

	return issues, err
}

// AnnotationScanner flags TODO and FIXME annotations.
type AnnotationScanner struct{}

func (s *AnnotationScanner) Name() string { return "annotations" }

func (s *AnnotationScanner) Scan(root string) ([]Issue, error) {
	issues := []Issue{}

	err := walkFiles(root, func(relPath, absPath string, info os.FileInfo) error {
		if looksBinary(absPath) {
			return nil
		}
		return scanLines(absPath, func(lineNo int, line string) {
			for _, tag := range []string{"FIXME", "TODO"} {
				if idx := strings.Index(line, tag); idx >= 0 {
					severity := SeverityInfo
					if tag == "FIXME" {
						severity = SeverityWarning
					}
					issues = append(issues, Issue{
						Scanner:  s.Name(),
						Path:     relPath,
						Line:     lineNo,
						Severity: severity,
						Message:  fmt.Sprintf("%s annotation: %s", tag, strings.TrimSpace(line)),
					})
					return
				}
			}
		})
	})

	return issues, err
}

// OversizeScanner flags files and lines that exceed review-friendly limits.
type OversizeScanner struct {
	MaxFileBytes int64
	MaxLineChars int
}

func (s *OversizeScanner) Name() string { return "oversize" }

func (s *OversizeScanner) Scan(root string) ([]Issue, error) {
	maxFile := s.MaxFileBytes
	if maxFile <= 0 {
		maxFile = 512 * 1024
	}
	maxLine := s.MaxLineChars
	if maxLine <= 0 {
		maxLine = 500
	}

	issues := []Issue{}

	err := walkFiles(root, func(relPath, absPath string, info os.FileInfo) error {
		if info.Size() > maxFile {
			issues = append(issues, Issue{
				Scanner:  s.Name(),
				Path:     relPath,
				Line:     0,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("file is %d bytes, larger than %d", info.Size(), maxFile),
			})
			return nil
		}
		if looksBinary(absPath) {
			return nil
		}
		return scanLines(absPath, func(lineNo int, line string) {
			if len(line) > maxLine {
				issues = append(issues, Issue{
					Scanner:  s.Name(),
					Path:     relPath,
					Line:     lineNo,
					Severity: SeverityInfo,
					Message:  fmt.Sprintf("line is %d characters, longer than %d", len(line), maxLine),
				})
			}
		})
	})

	return issues, err
}
