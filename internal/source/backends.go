package source

import (
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/google/go-github/v68/github"
	"github.com/opencontainers/go-digest"
	"github.com/picklr-io/pinmatrix/internal/ir"
)

// DefaultBackends returns the built-in resolution backends. Relative path
// sources are interpreted against root.
func DefaultBackends(root string) map[string]Backend {
	return map[string]Backend{
		"github": NewGitHubBackend(),
		"path":   &PathBackend{Root: root},
		"s3":     &S3Backend{},
		"docker": &DockerBackend{},
	}
}

// GitHubBackend pins "owner/repo[/ref]" to a commit SHA through the GitHub
// REST API.
type GitHubBackend struct {
	Client *github.Client
}

// NewGitHubBackend authenticates with GITHUB_TOKEN when it is set.
func NewGitHubBackend() *GitHubBackend {
	c := github.NewClient(&http.Client{Timeout: 30 * time.Second})
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c = c.WithAuthToken(token)
	}
	return &GitHubBackend{Client: c}
}

func (b *GitHubBackend) Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error) {
	parts := strings.SplitN(target, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("github locator must be owner/repo[/ref], got %q", target)
	}
	ref := "HEAD"
	if len(parts) == 3 && parts[2] != "" {
		ref = parts[2]
	}

	c := b.Client
	if c == nil {
		c = github.NewClient(nil)
	}
	sha, _, err := c.Repositories.GetCommitSHA1(ctx, parts[0], parts[1], ref, "")
	if err != nil {
		return nil, fmt.Errorf("failed to query commit %s of %s/%s: %w", ref, parts[0], parts[1], err)
	}

	sha = strings.TrimSpace(sha)
	if len(sha) != 40 {
		return nil, fmt.Errorf("github returned an unexpected revision %q", sha)
	}
	return &ir.ResolvedSource{Revision: sha}, nil
}

// PathBackend pins a local directory or file to the sha256 of its contents.
type PathBackend struct {
	Root string
}

var skippedDirs = map[string]bool{".git": true, ".pinmatrix": true}

// skippedFiles are pinmatrix's own bookkeeping files.
var skippedFiles = map[string]bool{"pinmatrix.lock": true, "pinmatrix.lock.lck": true}

func (b *PathBackend) Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error) {
	path := target
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.Root, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if skippedFiles[d.Name()] || strings.HasPrefix(d.Name(), ".pinmatrix-lock-") {
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	sort.Strings(files)

	digester := digest.Canonical.Digester()
	h := digester.Hash()
	var latest time.Time
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(path, f)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(f)
		if err != nil {
			return nil, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		if err := hashFile(h, f); err != nil {
			return nil, err
		}
		h.Write([]byte{0})
	}

	sum := digester.Digest()
	return &ir.ResolvedSource{
		Revision:     sum.Encoded(),
		Digest:       sum.String(),
		LastModified: latest.UTC().Truncate(time.Second),
	}, nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

type s3HeadAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Backend pins "bucket/key" to the object's version id, falling back to
// its ETag for unversioned buckets.
type S3Backend struct {
	Region string

	once   sync.Once
	client s3HeadAPI
	err    error
}

func (b *S3Backend) headClient(ctx context.Context) (s3HeadAPI, error) {
	b.once.Do(func() {
		if b.client != nil {
			return
		}
		var opts []func(*awsconfig.LoadOptions) error
		if b.Region != "" {
			opts = append(opts, awsconfig.WithRegion(b.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			b.err = fmt.Errorf("unable to load AWS config: %w", err)
			return
		}
		b.client = s3.NewFromConfig(cfg)
	})
	return b.client, b.err
}

func (b *S3Backend) Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error) {
	bucket, key, ok := strings.Cut(target, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 locator must be bucket/key, got %q", target)
	}

	api, err := b.headClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
	}

	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	rev := aws.ToString(out.VersionId)
	if rev == "" || rev == "null" {
		rev = etag
	}
	if rev == "" {
		return nil, errors.New("object has neither version id nor etag")
	}

	src := &ir.ResolvedSource{Revision: rev}
	if etag != "" {
		src.Digest = "etag:" + etag
	}
	if out.LastModified != nil {
		src.LastModified = out.LastModified.UTC()
	}
	return src, nil
}

type distributionAPI interface {
	DistributionInspect(ctx context.Context, imageRef, encodedRegistryAuth string) (registry.DistributionInspect, error)
}

// DockerBackend pins "image:tag" to the registry manifest digest.
type DockerBackend struct {
	once   sync.Once
	client distributionAPI
	err    error
}

func (b *DockerBackend) distribution() (distributionAPI, error) {
	b.once.Do(func() {
		if b.client != nil {
			return
		}
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			b.err = fmt.Errorf("failed to create Docker client: %w", err)
			return
		}
		b.client = cli
	})
	return b.client, b.err
}

func (b *DockerBackend) Resolve(ctx context.Context, target string) (*ir.ResolvedSource, error) {
	api, err := b.distribution()
	if err != nil {
		return nil, err
	}
	info, err := api.DistributionInspect(ctx, target, "")
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", target, err)
	}
	d := info.Descriptor.Digest
	if d == "" {
		return nil, fmt.Errorf("registry returned no digest for %s", target)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("registry returned invalid digest for %s: %w", target, err)
	}
	return &ir.ResolvedSource{Revision: d.Encoded(), Digest: d.String()}, nil
}
