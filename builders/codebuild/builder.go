package codebuild

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/logging"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultLogTail      = 20
)

type codebuildAPI interface {
	StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error)
	BatchGetBuilds(ctx context.Context, params *codebuild.BatchGetBuildsInput, optFns ...func(*codebuild.Options)) (*codebuild.BatchGetBuildsOutput, error)
	StopBuild(ctx context.Context, params *codebuild.StopBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StopBuildOutput, error)
}

type logsAPI interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// Builder runs one AWS CodeBuild build per platform and waits for it.
//
// Config keys: project (required), project:<platform> (per-platform
// override), region, profile, source_input (input whose revision becomes
// the source version), poll_interval, log_tail (lines of the CloudWatch
// build log attached to a failure, 0 disables).
type Builder struct {
	project      string
	projects     map[string]string
	sourceInput  string
	pollInterval time.Duration
	logTail      int
	client       codebuildAPI
	logs         logsAPI
}

// New validates config and creates the CodeBuild client.
func New(config map[string]string) (*Builder, error) {
	b, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := config["region"]; region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile := config["profile"]; profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	b.client = codebuild.NewFromConfig(cfg)
	b.logs = cloudwatchlogs.NewFromConfig(cfg)
	return b, nil
}

func parseConfig(config map[string]string) (*Builder, error) {
	b := &Builder{
		project:      config["project"],
		projects:     make(map[string]string),
		sourceInput:  config["source_input"],
		pollInterval: defaultPollInterval,
		logTail:      defaultLogTail,
	}
	for k, v := range config {
		if platform, ok := strings.CutPrefix(k, "project:"); ok {
			b.projects[platform] = v
		}
	}
	if b.project == "" && len(b.projects) == 0 {
		return nil, errors.New("codebuild builder requires 'project' configuration")
	}
	if s := config["poll_interval"]; s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid codebuild poll_interval %q", s)
		}
		b.pollInterval = d
	}
	if s := config["log_tail"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid codebuild log_tail %q", s)
		}
		b.logTail = n
	}
	return b, nil
}

func (b *Builder) Name() string { return "codebuild" }

func (b *Builder) projectFor(platform ir.PlatformID) string {
	if p, ok := b.projects[string(platform)]; ok {
		return p
	}
	return b.project
}

func (b *Builder) Build(ctx context.Context, req *ir.BuildRequest) (*ir.BuildArtifact, error) {
	project := b.projectFor(req.Platform)
	if project == "" {
		return nil, fmt.Errorf("no codebuild project configured for platform %s", req.Platform)
	}

	input := &codebuild.StartBuildInput{
		ProjectName:                  aws.String(project),
		EnvironmentVariablesOverride: environment(req),
	}
	if b.sourceInput != "" {
		src, ok := req.ExtraInputs[b.sourceInput]
		if !ok {
			return nil, fmt.Errorf("source_input %q is not a resolved input", b.sourceInput)
		}
		input.SourceVersion = aws.String(src.Revision)
	}

	started, err := b.client.StartBuild(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start codebuild project %s: %w", project, err)
	}
	if started.Build == nil || started.Build.Id == nil {
		return nil, fmt.Errorf("codebuild project %s returned no build id", project)
	}
	id := aws.ToString(started.Build.Id)
	log := logging.With("platform", req.Platform, "build", id)
	log.Info("codebuild build started", "project", project)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		out, err := b.client.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{Ids: []string{id}})
		if err != nil {
			return nil, fmt.Errorf("failed to poll codebuild build %s: %w", id, err)
		}
		if len(out.Builds) == 0 {
			return nil, fmt.Errorf("codebuild build %s not found", id)
		}

		build := out.Builds[0]
		switch build.BuildStatus {
		case cbtypes.StatusTypeSucceeded:
			return artifactFrom(req.Platform, build), nil
		case cbtypes.StatusTypeInProgress, "":
			log.Debug("codebuild build in progress", "phase", aws.ToString(build.CurrentPhase))
		default:
			err := fmt.Errorf("codebuild build %s finished with status %s", id, build.BuildStatus)
			if tail := b.tailLog(ctx, build); tail != "" {
				err = fmt.Errorf("%w\n%s", err, tail)
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			// Abandon the remote build so it stops consuming capacity.
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, stopErr := b.client.StopBuild(stopCtx, &codebuild.StopBuildInput{Id: aws.String(id)})
			cancel()
			if stopErr != nil {
				log.Warn("failed to stop codebuild build", "error", stopErr)
			}
			return nil, fmt.Errorf("codebuild build %s abandoned: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func environment(req *ir.BuildRequest) []cbtypes.EnvironmentVariable {
	plain := func(name, value string) cbtypes.EnvironmentVariable {
		return cbtypes.EnvironmentVariable{
			Name:  aws.String(name),
			Value: aws.String(value),
			Type:  cbtypes.EnvironmentVariableTypePlaintext,
		}
	}

	env := []cbtypes.EnvironmentVariable{
		plain("PINMATRIX_PACKAGE", req.PackageName),
		plain("PINMATRIX_SOURCE_PATH", req.SourcePath),
		plain("PINMATRIX_PLATFORM", string(req.Platform)),
		plain("PINMATRIX_TOOLCHAIN", strings.Join(req.Toolchain, " ")),
	}

	names := make([]string, 0, len(req.ExtraInputs))
	for n := range req.ExtraInputs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		env = append(env, plain("PINMATRIX_INPUT_"+envName(n), req.ExtraInputs[n].Revision))
	}
	return env
}

func envName(s string) string {
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

func artifactFrom(platform ir.PlatformID, build cbtypes.Build) *ir.BuildArtifact {
	a := &ir.BuildArtifact{
		Platform: platform,
		Builder:  "codebuild",
		ID:       aws.ToString(build.Arn),
	}
	if a.ID == "" {
		a.ID = aws.ToString(build.Id)
	}
	if build.Artifacts != nil {
		a.Location = aws.ToString(build.Artifacts.Location)
		if sum := aws.ToString(build.Artifacts.Sha256sum); sum != "" {
			a.Digest = "sha256:" + sum
		}
	}
	return a
}

// tailLog returns the last lines of the build's CloudWatch log, or "" when
// they cannot be read.
func (b *Builder) tailLog(ctx context.Context, build cbtypes.Build) string {
	if b.logs == nil || b.logTail == 0 || build.Logs == nil || build.Logs.GroupName == nil || build.Logs.StreamName == nil {
		return ""
	}

	out, err := b.logs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  build.Logs.GroupName,
		LogStreamName: build.Logs.StreamName,
		Limit:         aws.Int32(int32(b.logTail)),
		StartFromHead: aws.Bool(false),
	})
	if err != nil {
		logging.Warn("failed to read codebuild log", "build", aws.ToString(build.Id), "error", err)
		return ""
	}

	var lines []string
	for _, e := range out.Events {
		lines = append(lines, strings.TrimRight(aws.ToString(e.Message), "\n"))
	}
	return strings.Join(lines, "\n")
}
