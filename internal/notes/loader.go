package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/notectx/notectx-mcp/pkg/types"
)

// Loader reads note files under a corpus root and derives their metadata
type Loader struct {
	root string
}

// NewLoader creates a Loader for the given corpus root directory
func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

// Root returns the corpus root directory
func (l *Loader) Root() string {
	return l.root
}

// Load reads and parses a single note identified by its relative path
func (l *Loader) Load(ctx context.Context, relPath string) (*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	absPath := filepath.Join(l.root, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", relPath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}

	doc := Parse(relPath, string(content), info.ModTime(), info.Size())
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document %s: %w", relPath, err)
	}
	return doc, nil
}

// DiscoverPaths walks the corpus root and returns the relative paths of all
// indexable note files, sorted. Hidden directories are skipped.
func (l *Loader) DiscoverPaths() ([]string, error) {
	var paths []string

	err := filepath.Walk(l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != l.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !Indexable(path) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// Stat returns the filesystem fingerprint for a relative path
func (l *Loader) Stat(relPath string) (modTime time.Time, size int64, err error) {
	info, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(relPath)))
	if err != nil {
		return time.Time{}, 0, err
	}
	return info.ModTime(), info.Size(), nil
}

// Indexable reports whether a file path is a note this index handles
func Indexable(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// frontMatter is the subset of YAML front matter the index understands
type frontMatter struct {
	Tags     []string `yaml:"tags"`
	Template string   `yaml:"template"`
	Created  string   `yaml:"created"`
}

var (
	hashtagPattern = regexp.MustCompile(`(^|\s)#([\p{L}\d][\p{L}\d/_-]*)`)
	dateSegment    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	fencePattern   = regexp.MustCompile("(?s)```.*?```")
)

// Parse builds a Document from raw content and file stats. It never fails:
// malformed front matter is treated as body text.
func Parse(relPath, content string, modTime time.Time, size int64) *types.Document {
	fm, body := splitFrontMatter(content)

	doc := &types.Document{
		Path:      filepath.ToSlash(relPath),
		Content:   body,
		ModTime:   modTime,
		CreatedAt: modTime,
		SizeBytes: size,
		Facets:    deriveFacets(relPath),
	}
	doc.ComputeWordCount()
	doc.Tags = mergeTags(fm.Tags, extractHashtags(body))
	doc.Type = classify(doc, fm)

	if fm.Created != "" {
		if t, err := time.Parse("2006-01-02", fm.Created); err == nil {
			doc.CreatedAt = t
		}
	}

	return doc
}

// splitFrontMatter separates a leading YAML front-matter block from the body.
// A block that fails to parse as YAML is kept as body text.
func splitFrontMatter(content string) (frontMatter, string) {
	var fm frontMatter

	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return fm, content
	}

	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, content
	}

	block := rest[:end]
	body := rest[end+4:]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return frontMatter{}, content
	}
	return fm, body
}

// extractHashtags finds inline #tag tokens outside code fences
func extractHashtags(body string) []string {
	stripped := fencePattern.ReplaceAllString(body, "")
	matches := hashtagPattern.FindAllStringSubmatch(stripped, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[2])
	}
	return tags
}

// mergeTags lowercases, deduplicates, and sorts tag lists
func mergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			merged = append(merged, tag)
		}
	}
	sort.Strings(merged)
	return merged
}

// deriveFacets infers date and category facets from the relative path
func deriveFacets(relPath string) types.PathFacets {
	var facets types.PathFacets

	segments := strings.Split(filepath.ToSlash(relPath), "/")

	// Date from YYYY/MM/DD directory layout
	if len(segments) >= 4 {
		if y, m, d, ok := parseDateSegments(segments[0], segments[1], segments[2]); ok {
			facets.Year, facets.Month, facets.Day = y, m, d
		}
	}

	// Date from a YYYY-MM-DD filename prefix
	if facets.Year == 0 {
		base := segments[len(segments)-1]
		if m := dateSegment.FindStringSubmatch(base); m != nil {
			facets.Year, _ = strconv.Atoi(m[1])
			facets.Month, _ = strconv.Atoi(m[2])
			facets.Day, _ = strconv.Atoi(m[3])
		}
	}

	if len(segments) > 1 {
		facets.Category = segments[0]
	}
	if len(segments) > 2 {
		facets.Subcategory = segments[1]
	}

	return facets
}

func parseDateSegments(y, m, d string) (int, int, int, bool) {
	if len(y) != 4 {
		return 0, 0, 0, false
	}
	year, err := strconv.Atoi(y)
	if err != nil || year < 1900 || year > 2200 {
		return 0, 0, 0, false
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, 0, false
	}
	day, err := strconv.Atoi(d)
	if err != nil || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

// classify assigns the coarse note type used as a retrieval facet
func classify(doc *types.Document, fm frontMatter) types.NoteType {
	if fm.Template != "" {
		return types.NoteTemplated
	}
	if doc.Facets.Year != 0 {
		return types.NoteDated
	}
	if isMostlyFenced(doc.Content) {
		return types.NoteDiagram
	}
	return types.NotePlain
}

// isMostlyFenced reports whether over half the content sits in code fences
func isMostlyFenced(content string) bool {
	if content == "" {
		return false
	}
	fenced := 0
	for _, m := range fencePattern.FindAllString(content, -1) {
		fenced += len(m)
	}
	return fenced*2 > len(content)
}
