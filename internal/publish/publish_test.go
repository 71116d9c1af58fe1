package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/danmuck/clubsite/internal/assets"
	"github.com/danmuck/clubsite/internal/config"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/danmuck/clubsite/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type uploaded struct {
	bucket       string
	contentType  string
	cacheControl string
	body         string
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]uploaded
	failOn  string
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failOn {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string]uploaded)
	}
	f.objects[key] = uploaded{
		bucket:       aws.ToString(in.Bucket),
		contentType:  aws.ToString(in.ContentType),
		cacheControl: aws.ToString(in.CacheControl),
		body:         string(body),
	}
	return &manager.UploadOutput{Key: in.Key}, nil
}

type fakeInvalidator struct {
	inputs []*cloudfront.CreateInvalidationInput
}

func (f *fakeInvalidator) CreateInvalidation(_ context.Context, in *cloudfront.CreateInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudfront.CreateInvalidationOutput{Invalidation: &types.Invalidation{Id: aws.String("I123")}}, nil
}

func writeSite(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	files := map[string]string{
		"data/members.json":       `[{"id":"1","name":"A","role":"Chairperson","imageUrl":"/api/assets/execom/a.jpg","socials":{}}]`,
		"data/events.json":        `[]`,
		"data/timeline.json":      `[{"id":"t1","title":"Founded","dateISO":"2019"}]`,
		"primary/execom/a.jpg":    "primary-a",
		"fallback/execom/a.jpg":   "fallback-a",
		"fallback/club/logo.svg":  "<svg/>",
		"fallback/docs/guide.pdf": "%PDF",
	}
	for rel, body := range files {
		p := filepath.Join(base, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return base
}

func newPublisher(t *testing.T, base string, cfg config.PublishConfig, up Uploader, inv Invalidator) *Publisher {
	t.Helper()
	testlog.Start(t)
	resolver, err := assets.NewResolver([]string{filepath.Join(base, "primary"), filepath.Join(base, "fallback")})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	p, err := New(cfg, dataset.NewLoader(filepath.Join(base, "data")), resolver, up, inv, zerolog.Nop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return p
}

func TestPublishUploadsDatasetsAndAssets(t *testing.T) {
	base := writeSite(t)
	up := &fakeUploader{}
	inv := &fakeInvalidator{}
	p := newPublisher(t, base, config.PublishConfig{Bucket: "club", Prefix: "site", DistributionID: "E1"}, up, inv)

	report, err := p.Publish(context.Background(), false)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(report.Objects) != 6 || len(up.objects) != 6 {
		t.Fatalf("expected 6 objects, planned %d uploaded %d", len(report.Objects), len(up.objects))
	}

	members, ok := up.objects["site/api/members"]
	if !ok {
		t.Fatalf("members document missing: %v", up.objects)
	}
	if members.bucket != "club" || members.contentType != "application/json; charset=utf-8" {
		t.Fatalf("unexpected members object %+v", members)
	}
	want := `[{"id":"1","name":"A","role":"Chairperson","imageUrl":"/api/assets/execom/a.jpg","socials":{}}]`
	if members.body != want {
		t.Fatalf("unexpected members body %s", members.body)
	}

	photo := up.objects["site/api/assets/execom/a.jpg"]
	if photo.body != "primary-a" {
		t.Fatalf("expected earlier root to shadow later ones, got %q", photo.body)
	}
	if photo.contentType != "image/jpeg" || photo.cacheControl != assets.CacheControl {
		t.Fatalf("unexpected asset object %+v", photo)
	}
	if up.objects["site/api/assets/club/logo.svg"].contentType != "image/svg+xml" {
		t.Fatalf("unexpected svg content type")
	}

	if report.InvalidationID != "I123" || len(inv.inputs) != 1 {
		t.Fatalf("expected one invalidation, got %q (%d)", report.InvalidationID, len(inv.inputs))
	}
	batch := inv.inputs[0].InvalidationBatch
	if got := batch.Paths.Items; len(got) != 1 || got[0] != "/site/api/*" {
		t.Fatalf("unexpected invalidation paths %v", got)
	}
	if aws.ToString(batch.CallerReference) != "clubsite-1700000000000000000" {
		t.Fatalf("unexpected caller reference %q", aws.ToString(batch.CallerReference))
	}
}

func TestPublishDryRunUploadsNothing(t *testing.T) {
	base := writeSite(t)
	up := &fakeUploader{}
	inv := &fakeInvalidator{}
	p := newPublisher(t, base, config.PublishConfig{Bucket: "club", DistributionID: "E1"}, up, inv)

	report, err := p.Publish(context.Background(), true)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !report.DryRun || len(report.Objects) != 6 {
		t.Fatalf("unexpected dry run report %+v", report)
	}
	if len(up.objects) != 0 || len(inv.inputs) != 0 {
		t.Fatalf("dry run must not touch the bucket")
	}
	if report.Objects[0].Key != "api/assets/club/logo.svg" {
		t.Fatalf("expected sorted unprefixed keys, got %q", report.Objects[0].Key)
	}
}

func TestPublishRejectsInvalidData(t *testing.T) {
	base := writeSite(t)
	if err := os.WriteFile(filepath.Join(base, "data", "events.json"), []byte(`[{"id":"e1"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	up := &fakeUploader{}
	p := newPublisher(t, base, config.PublishConfig{Bucket: "club"}, up, nil)

	if _, err := p.Publish(context.Background(), false); err == nil {
		t.Fatalf("expected invalid events to block publish")
	}
	if len(up.objects) != 0 {
		t.Fatalf("nothing should be uploaded when validation fails")
	}
}

func TestPublishSurfacesUploadErrors(t *testing.T) {
	base := writeSite(t)
	up := &fakeUploader{failOn: "api/events"}
	p := newPublisher(t, base, config.PublishConfig{Bucket: "club"}, up, nil)

	if _, err := p.Publish(context.Background(), false); err == nil {
		t.Fatalf("expected upload error")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(config.PublishConfig{}, nil, nil, nil, nil, zerolog.Nop()); !errors.Is(err, ErrNoBucket) {
		t.Fatalf("expected ErrNoBucket, got %v", err)
	}
}
