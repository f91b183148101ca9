// Package ignore decides which paths under the watch root are invisible to
// indexing. Patterns use gitignore syntax: "*" and "?" stay inside one path
// segment, "**" crosses segments, a trailing "/" restricts a rule to
// directories (and everything below them), a leading "/" or an inner "/"
// anchors the rule at the root, and "!" re-includes a previously ignored path.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// GitignoreFile is the per-directory ignore file honoured by Matcher.
const GitignoreFile = ".gitignore"

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	base     string
}

// Matcher holds compiled rules. Safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// New returns a matcher holding the given patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p, "")
	}
	return m
}

// Add compiles one pattern. base is the slash-separated directory the
// pattern is scoped to ("" for the root).
func (m *Matcher) Add(pattern, base string) {
	pattern = strings.TrimRight(pattern, " \t\r")
	pattern = strings.TrimLeft(pattern, " \t")
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	var r rule
	r.base = strings.Trim(filepath.ToSlash(base), "/")
	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimLeft(pattern, "/")
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		r.anchored = true
	}
	if pattern == "" {
		return
	}

	re, err := regexp.Compile("^" + globToRegexp(pattern) + "$")
	if err != nil {
		return
	}
	r.re = re

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFile loads a .gitignore style file whose rules apply under base.
func (m *Matcher) AddFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ignore file %s: %w", file, err)
	}
	return nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether rel (relative to the root) is ignored. The last
// matching rule wins, so a negation can re-include a path.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, r.base+"/")
	}

	segs := strings.Split(rel, "/")

	if r.anchored {
		// The rule may name rel itself or one of its parent directories.
		for i := len(segs); i >= 1; i-- {
			prefix := strings.Join(segs[:i], "/")
			if !r.re.MatchString(prefix) {
				continue
			}
			if i < len(segs) {
				return true
			}
			return !r.dirOnly || isDir
		}
		return false
	}

	for i, seg := range segs {
		if !r.re.MatchString(seg) {
			continue
		}
		if i < len(segs)-1 {
			return true
		}
		return !r.dirOnly || isDir
	}
	return !r.dirOnly && r.re.MatchString(rel)
}

// globToRegexp translates one gitignore glob into a regular expression body.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// LoadTree builds a matcher from patterns plus every .gitignore found
// under root. Directories already ignored are not descended into.
func LoadTree(root string, patterns []string) (*Matcher, error) {
	m := New(patterns...)
	if err := m.AddFile(filepath.Join(root, GitignoreFile), ""); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return m, err
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if m.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == GitignoreFile && rel != GitignoreFile {
			_ = m.AddFile(p, path.Dir(rel))
		}
		return nil
	})
	return m, err
}
