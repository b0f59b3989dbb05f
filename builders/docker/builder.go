package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/picklr-io/pinmatrix/internal/ir"
)

type imageAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
}

// Builder builds the package as a Docker image for the requested platform.
//
// Config keys:
//
//	context        build context directory (default: the package source path)
//	dockerfile     Dockerfile path inside the context (default "Dockerfile")
//	repository     image repository (default: the package name)
//	push           "true" to push the image after building
//	registry_auth  "ecr" to authenticate pushes with Amazon ECR
//	region         AWS region for registry_auth "ecr"
type Builder struct {
	context    string
	dockerfile string
	repository string
	push       bool
	auth       string
	region     string

	once   sync.Once
	client imageAPI
	err    error

	ecrOnce sync.Once
	ecr     ecrTokenAPI
	ecrErr  error
}

func New(config map[string]string) *Builder {
	return &Builder{
		context:    config["context"],
		dockerfile: config["dockerfile"],
		repository: config["repository"],
		push:       config["push"] == "true",
		auth:       config["registry_auth"],
		region:     config["region"],
	}
}

func (b *Builder) Name() string { return "docker" }

func (b *Builder) ensureClient() (imageAPI, error) {
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

func (b *Builder) Build(ctx context.Context, req *ir.BuildRequest) (*ir.BuildArtifact, error) {
	platform, err := ParsePlatform(req.Platform)
	if err != nil {
		return nil, err
	}

	api, err := b.ensureClient()
	if err != nil {
		return nil, err
	}

	buildContext := b.context
	if buildContext == "" {
		buildContext = req.SourcePath
	}
	tar, err := archive.TarWithOptions(filepath.Clean(buildContext), &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context tar: %w", err)
	}
	defer tar.Close()

	tag := b.imageTag(req)
	opts := types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: b.dockerfile,
		Remove:     true,
		Platform:   FormatPlatform(platform),
		BuildArgs:  BuildArgs(req),
	}

	resp, err := api.ImageBuild(ctx, tar, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	var progress bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &progress, 0, false, nil); err != nil {
		return nil, fmt.Errorf("image build failed: %w", err)
	}

	inspect, _, err := api.ImageInspectWithRaw(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect built image: %w", err)
	}

	artifact := &ir.BuildArtifact{
		Platform: req.Platform,
		Builder:  b.Name(),
		ID:       inspect.ID,
		Location: "docker://" + tag,
		Digest:   inspect.ID,
	}
	if b.push {
		ref, err := b.publish(ctx, api, tag)
		if err != nil {
			return nil, err
		}
		if ref != "" {
			artifact.Location = "docker://" + ref
			_, artifact.Digest, _ = strings.Cut(ref, "@")
		}
	}
	return artifact, nil
}

func (b *Builder) imageTag(req *ir.BuildRequest) string {
	repo := b.repository
	if repo == "" {
		repo = sanitize(req.PackageName)
	}
	return repo + ":" + sanitize(string(req.Platform))
}

// BuildArgs exposes the request to the Dockerfile as build arguments.
func BuildArgs(req *ir.BuildRequest) map[string]*string {
	str := func(s string) *string { return &s }

	args := map[string]*string{
		"PACKAGE_NAME": str(req.PackageName),
		"SOURCE_PATH":  str(req.SourcePath),
		"PLATFORM":     str(string(req.Platform)),
		"TOOLCHAIN":    str(strings.Join(req.Toolchain, " ")),
	}

	names := make([]string, 0, len(req.ExtraInputs))
	for n := range req.ExtraInputs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		args["INPUT_"+argName(n)+"_REV"] = str(req.ExtraInputs[n].Revision)
	}
	return args
}

func sanitize(s string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.', c == '-':
			b.WriteRune(c)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func argName(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c >= 'a' && c <= 'z':
			return c - 'a' + 'A'
		default:
			return '_'
		}
	}, s)
}
