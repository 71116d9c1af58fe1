package assets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	StrategyExact           = "exact"
	StrategyCaseInsensitive = "case_insensitive"
)

// Strategy locates a clean relative path under one root.
type Strategy interface {
	Name() string
	Locate(root, rel string) (string, bool)
}

// DefaultStrategies returns exact matching followed by case-insensitive
// matching.
func DefaultStrategies() []Strategy {
	return []Strategy{ExactMatch{}, CaseInsensitiveMatch{}}
}

// ExactMatch accepts a regular file at exactly root/rel.
type ExactMatch struct{}

func (ExactMatch) Name() string { return StrategyExact }

func (ExactMatch) Locate(root, rel string) (string, bool) {
	p := filepath.Join(root, filepath.FromSlash(rel))
	if !isRegularFile(p) {
		return "", false
	}
	return p, true
}

// CaseInsensitiveMatch walks rel one segment at a time, matching each
// segment against directory entries without regard to case. An exact-case
// entry wins over a case-folded one; among case-folded candidates the
// lexically first is used. Unreadable or missing directories are a miss.
type CaseInsensitiveMatch struct{}

func (CaseInsensitiveMatch) Name() string { return StrategyCaseInsensitive }

func (CaseInsensitiveMatch) Locate(root, rel string) (string, bool) {
	current := root
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" {
			continue
		}
		entries, err := os.ReadDir(current)
		if err != nil {
			return "", false
		}
		next, ok := matchSegment(entries, segment)
		if !ok {
			return "", false
		}
		current = filepath.Join(current, next)
	}
	if !isRegularFile(current) {
		return "", false
	}
	return current, true
}

func matchSegment(entries []os.DirEntry, segment string) (string, bool) {
	candidates := make([]string, 0, 1)
	for _, entry := range entries {
		name := entry.Name()
		if name == segment {
			return name, true
		}
		if strings.EqualFold(name, segment) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
