package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// URLPrefix is the only URL prefix under which assets are served.
	URLPrefix = "/api/assets/"

	// CacheControl is sent with every asset, served or published.
	CacheControl = "public, max-age=3600"
)

// InvalidPathError reports a requested path that is empty or would escape
// the asset root.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("Invalid asset path: %s (%s)", e.Path, e.Reason)
}

// NotFoundError reports a path that no strategy could locate.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Asset not found: %s", e.Path)
}

var ErrNoRoots = errors.New("assets: no asset roots configured")

// Asset is a located file ready to be served.
type Asset struct {
	Rel         string
	Path        string
	Root        string
	ContentType string
	Strategy    string
}

// Resolver locates asset files under an ordered list of roots.
type Resolver struct {
	roots      []string
	strategies []Strategy
}

// NewResolver builds a resolver over roots, tried in the given order, with
// the default strategies (exact match, then case-insensitive match).
func NewResolver(roots []string) (*Resolver, error) {
	return NewResolverWithStrategies(roots, DefaultStrategies())
}

// NewResolverWithStrategies builds a resolver with an explicit strategy
// order.
func NewResolverWithStrategies(roots []string, strategies []Strategy) (*Resolver, error) {
	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("asset root %q: %w", root, err)
		}
		resolved = append(resolved, filepath.Clean(abs))
	}
	if len(resolved) == 0 {
		return nil, ErrNoRoots
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{roots: resolved, strategies: strategies}, nil
}

// Roots returns the absolute roots in priority order.
func (r *Resolver) Roots() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Resolve locates rel. Each strategy is tried against every root before
// the next strategy runs; the first hit wins.
func (r *Resolver) Resolve(ctx context.Context, rel string) (Asset, error) {
	clean, err := Normalize(rel)
	if err != nil {
		return Asset{}, err
	}
	for _, strategy := range r.strategies {
		for _, root := range r.roots {
			if err := ctx.Err(); err != nil {
				return Asset{}, err
			}
			found, ok := strategy.Locate(root, clean)
			if !ok || !containedIn(found, root) {
				continue
			}
			return Asset{
				Rel:         clean,
				Path:        found,
				Root:        root,
				ContentType: ContentType(found),
				Strategy:    strategy.Name(),
			}, nil
		}
	}
	return Asset{}, &NotFoundError{Path: clean}
}

// Normalize converts a request path into a clean slash-separated path
// relative to an asset root.
func Normalize(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", &InvalidPathError{Path: rel, Reason: "contains NUL"}
	}
	p := strings.ReplaceAll(rel, `\`, "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", &InvalidPathError{Path: rel, Reason: "empty path"}
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", &InvalidPathError{Path: rel, Reason: "empty path"}
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(filepath.FromSlash(clean)) || filepath.VolumeName(filepath.FromSlash(clean)) != "" {
		return "", &InvalidPathError{Path: rel, Reason: "escapes asset root"}
	}
	return clean, nil
}

// containedIn reports whether p stays under root once symlinks on both
// sides are resolved. A link pointing out of the root is a miss.
func containedIn(p, root string) bool {
	if !isWithin(p, root) {
		return false
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	realPath, err := filepath.EvalSymlinks(p)
	if err != nil {
		return false
	}
	return isWithin(realPath, realRoot)
}

func isWithin(p string, root string) bool {
	cp := filepath.Clean(p)
	cr := filepath.Clean(root)
	if cp == cr {
		return true
	}
	return strings.HasPrefix(cp, cr+string(os.PathSeparator))
}

// ContentType maps a file extension to the MIME type served for it.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
