// Package publish exports the read-only API as static S3 objects so the
// site can be served from a bucket behind CloudFront.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/danmuck/clubsite/internal/assets"
	"github.com/danmuck/clubsite/internal/audit"
	"github.com/danmuck/clubsite/internal/config"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/rs/zerolog"
)

const (
	datasetContentType  = "application/json; charset=utf-8"
	datasetCacheControl = "public, max-age=60"
)

var ErrNoBucket = errors.New("publish: bucket is required")

// Uploader is the subset of the S3 transfer manager used here.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Invalidator is the subset of the CloudFront client used here.
type Invalidator interface {
	CreateInvalidation(ctx context.Context, input *cloudfront.CreateInvalidationInput, opts ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// Object is one planned upload.
type Object struct {
	Key          string
	ContentType  string
	CacheControl string
	Size         int64
	// Source is the local file for assets; empty for dataset documents.
	Source string

	body []byte
}

// Report describes a publish run.
type Report struct {
	Bucket         string
	Objects        []Object
	DryRun         bool
	InvalidationID string
}

// Publisher uploads datasets and assets to one bucket.
type Publisher struct {
	cfg         config.PublishConfig
	loader      *dataset.Loader
	resolver    *assets.Resolver
	uploader    Uploader
	invalidator Invalidator
	logger      zerolog.Logger
	now         func() time.Time
}

// New builds a publisher. invalidator may be nil when no distribution is
// configured.
func New(cfg config.PublishConfig, loader *dataset.Loader, resolver *assets.Resolver, uploader Uploader, invalidator Invalidator, logger zerolog.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if loader == nil || resolver == nil {
		return nil, errors.New("publish: loader and resolver are required")
	}
	if uploader == nil {
		return nil, errors.New("publish: uploader is required")
	}
	return &Publisher{
		cfg:         cfg,
		loader:      loader,
		resolver:    resolver,
		uploader:    uploader,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// NewAWS builds a publisher backed by the default AWS credential chain.
func NewAWS(ctx context.Context, cfg config.PublishConfig, loader *dataset.Loader, resolver *assets.Resolver, logger zerolog.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("publish: load aws config: %w", err)
	}
	uploader := manager.NewUploader(s3.NewFromConfig(awsCfg))
	var invalidator Invalidator
	if cfg.DistributionID != "" {
		invalidator = cloudfront.NewFromConfig(awsCfg)
	}
	return New(cfg, loader, resolver, uploader, invalidator, logger)
}

// Plan validates the data directory and lists every object a publish would
// write, sorted by key.
func (p *Publisher) Plan(ctx context.Context) ([]Object, error) {
	report, err := audit.Run(ctx, p.loader, p.resolver)
	if err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return nil, fmt.Errorf("publish: data directory is invalid: %w", err)
	}

	var objects []Object
	for _, name := range dataset.Names() {
		data, err := p.loader.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("publish: encode %s: %w", name, err)
		}
		objects = append(objects, Object{
			Key:          p.key("api", name),
			ContentType:  datasetContentType,
			CacheControl: datasetCacheControl,
			Size:         int64(len(body)),
			body:         body,
		})
	}

	assetObjects, err := p.planAssets(ctx)
	if err != nil {
		return nil, err
	}
	objects = append(objects, assetObjects...)
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// planAssets walks every root; a relative path found under an earlier root
// shadows the same path under later ones.
func (p *Publisher) planAssets(ctx context.Context) ([]Object, error) {
	seen := make(map[string]struct{})
	var objects []Object
	for _, root := range p.resolver.Roots() {
		err := filepath.WalkDir(root, func(fp string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && fp == root {
					return fs.SkipDir
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, fp)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if _, dup := seen[rel]; dup {
				return nil
			}
			seen[rel] = struct{}{}

			info, err := d.Info()
			if err != nil {
				return err
			}
			objects = append(objects, Object{
				Key:          p.key("api", "assets", rel),
				ContentType:  assets.ContentType(rel),
				CacheControl: assets.CacheControl,
				Size:         info.Size(),
				Source:       fp,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("publish: walk %s: %w", root, err)
		}
	}
	return objects, nil
}

// Publish uploads the planned objects and, when a distribution is
// configured, invalidates the API paths. A dry run only plans.
func (p *Publisher) Publish(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{Bucket: p.cfg.Bucket, DryRun: dryRun}
	objects, err := p.Plan(ctx)
	if err != nil {
		return report, err
	}
	report.Objects = objects
	if dryRun {
		for _, obj := range objects {
			p.logger.Info().Str("key", obj.Key).Int64("size", obj.Size).Msg("would upload")
		}
		return report, nil
	}

	for _, obj := range objects {
		if err := p.upload(ctx, obj); err != nil {
			return report, err
		}
		p.logger.Debug().Str("bucket", p.cfg.Bucket).Str("key", obj.Key).Msg("uploaded")
	}
	p.logger.Info().Str("bucket", p.cfg.Bucket).Int("objects", len(objects)).Msg("publish complete")

	if p.cfg.DistributionID == "" || p.invalidator == nil {
		return report, nil
	}
	id, err := p.invalidate(ctx)
	if err != nil {
		return report, err
	}
	report.InvalidationID = id
	p.logger.Info().Str("distribution", p.cfg.DistributionID).Str("invalidation", id).Msg("invalidation created")
	return report, nil
}

func (p *Publisher) upload(ctx context.Context, obj Object) error {
	var body io.Reader
	if obj.Source == "" {
		body = bytes.NewReader(obj.body)
	} else {
		f, err := os.Open(obj.Source)
		if err != nil {
			return fmt.Errorf("publish: open %s: %w", obj.Source, err)
		}
		defer f.Close()
		body = f
	}
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.cfg.Bucket),
		Key:          aws.String(obj.Key),
		Body:         body,
		ContentType:  aws.String(obj.ContentType),
		CacheControl: aws.String(obj.CacheControl),
	})
	if err != nil {
		return fmt.Errorf("publish: upload %s: %w", obj.Key, err)
	}
	return nil
}

func (p *Publisher) invalidate(ctx context.Context) (string, error) {
	out, err := p.invalidator.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(p.cfg.DistributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String("clubsite-" + strconv.FormatInt(p.now().UnixNano(), 10)),
			Paths: &types.Paths{
				Quantity: aws.Int32(1),
				Items:    []string{"/" + p.key("api", "*")},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("publish: invalidate %s: %w", p.cfg.DistributionID, err)
	}
	if out == nil || out.Invalidation == nil {
		return "", nil
	}
	return aws.ToString(out.Invalidation.Id), nil
}

func (p *Publisher) key(parts ...string) string {
	return path.Join(append([]string{p.cfg.Prefix}, parts...)...)
}
