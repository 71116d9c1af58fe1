// Package audit checks a data directory and its asset roots the way the
// server would read them, without serving anything.
package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/clubsite/internal/assets"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/danmuck/clubsite/internal/site"
)

// Finding is one problem found in a dataset.
type Finding struct {
	Dataset string
	Err     error
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %v", f.Dataset, f.Err)
}

// Report is the outcome of a full audit.
type Report struct {
	Records  map[string]int
	Findings []Finding
}

// OK reports whether the audit found nothing to fix.
func (r Report) OK() bool {
	return len(r.Findings) == 0
}

// Err folds every finding into one error, or nil when the report is clean.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Findings))
	for _, f := range r.Findings {
		errs = append(errs, fmt.Errorf("%s: %w", f.Dataset, f.Err))
	}
	return errors.Join(errs...)
}

// Run validates every dataset and checks that member images pointing at the
// asset route exist under one of the resolver's roots.
func Run(ctx context.Context, loader *dataset.Loader, resolver *assets.Resolver) (Report, error) {
	report := Report{Records: make(map[string]int, len(dataset.Names()))}
	for _, name := range dataset.Names() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data, err := loader.Load(ctx, name)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			report.Findings = append(report.Findings, Finding{Dataset: name, Err: err})
			continue
		}
		report.Records[name] = count(data)

		if members, ok := data.([]site.Member); ok && resolver != nil {
			report.Findings = append(report.Findings, checkImages(ctx, members, resolver)...)
		}
	}
	return report, nil
}

func count(data any) int {
	switch v := data.(type) {
	case []site.Member:
		return len(v)
	case []site.ClubEvent:
		return len(v)
	case []site.TimelineItem:
		return len(v)
	}
	return 0
}

func checkImages(ctx context.Context, members []site.Member, resolver *assets.Resolver) []Finding {
	var findings []Finding
	for i, m := range members {
		rel, ok := AssetPath(m.ImageURL)
		if !ok {
			continue
		}
		found, err := resolver.Resolve(ctx, rel)
		if err == nil && found.Strategy != assets.StrategyExact {
			err = caseMismatch(found)
		}
		if err != nil {
			findings = append(findings, Finding{
				Dataset: dataset.Members,
				Err:     fmt.Errorf("%s[%d].imageUrl: %w", dataset.Members, i, err),
			})
		}
	}
	return findings
}

// CaseMismatchError reports an image that the server finds only by ignoring
// case. Published objects keep the on-disk name, so the static copy would
// miss it.
type CaseMismatchError struct {
	Requested string
	OnDisk    string
}

func (e *CaseMismatchError) Error() string {
	return fmt.Sprintf("%s matches %s only when ignoring case", e.Requested, e.OnDisk)
}

func caseMismatch(found assets.Asset) error {
	onDisk := found.Path
	if rel, err := filepath.Rel(found.Root, found.Path); err == nil {
		onDisk = filepath.ToSlash(rel)
	}
	return &CaseMismatchError{Requested: found.Rel, OnDisk: onDisk}
}

// AssetPath extracts the asset-relative path from an image URL served by
// this backend. Remote URLs and bare identifiers report false.
func AssetPath(imageURL string) (string, bool) {
	rel, ok := strings.CutPrefix(strings.TrimSpace(imageURL), assets.URLPrefix)
	if !ok || rel == "" {
		return "", false
	}
	return rel, true
}
