// Package scanner walks directory trees for loop-candidate description
// files. It honours .dswpignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Format is the encoding of a candidate file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DetectFormat returns the candidate format for a file extension, or ""
// when the extension is not a candidate encoding.
func DetectFormat(ext string) Format {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return ""
	}
}

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Format   Format
	Size     int64 // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string   // Name of the ignore file (default: .dswpignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:      true,
		IgnoreFileName:  ".dswpignore",
		DefaultExcludes: []string{".git", ".hg", ".svn", "node_modules", "vendor", "testdata"},
	}
}

// scopedPattern is a pattern read from the ignore file of dir.
type scopedPattern struct {
	dir string // slash separated, "" for the root
	IgnorePattern
}

// Scanner finds candidate files below a root directory.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = DefaultOptions().IgnoreFileName
	}
	return &Scanner{opts: opts}
}

// Scan returns the candidate files below root sorted by path. A root that
// is itself a file is returned as the only result.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []FileInfo{{
			Path:     filepath.Base(absRoot),
			FullPath: absRoot,
			Format:   DetectFormat(filepath.Ext(absRoot)),
			Size:     info.Size(),
		}}, nil
	}

	var patterns []scopedPattern
	var files []FileInfo

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		if rel == "." {
			loaded, err := s.loadIgnorePatterns(p, "")
			if err != nil {
				return err
			}
			patterns = append(patterns, loaded...)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || ignored(rel, true, patterns) {
				return filepath.SkipDir
			}
			loaded, err := s.loadIgnorePatterns(p, rel)
			if err != nil {
				return err
			}
			patterns = append(patterns, loaded...)
			return nil
		}

		if !d.Type().IsRegular() || ignored(rel, false, patterns) {
			return nil
		}
		format := DetectFormat(path.Ext(rel))
		if format == "" {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Path: rel, FullPath: p, Format: format, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file of dir, if any.
func (s *Scanner) loadIgnorePatterns(dir, rel string) ([]scopedPattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	defer file.Close()

	var patterns []scopedPattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, scopedPattern{dir: rel, IgnorePattern: ParseIgnorePattern(line)})
	}
	return patterns, sc.Err()
}

// ignored applies patterns in order; a later negation re-includes.
func ignored(rel string, isDir bool, patterns []scopedPattern) bool {
	result := false
	for _, p := range patterns {
		local := rel
		if p.dir != "" {
			if !strings.HasPrefix(rel, p.dir+"/") {
				continue
			}
			local = strings.TrimPrefix(rel, p.dir+"/")
		}
		if p.match(local, isDir) {
			result = !p.IsNegation()
		}
	}
	return result
}

// Scan scans root with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
