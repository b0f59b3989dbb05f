package null

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// Builder performs no work. Its artifact is a digest of the request, so
// identical requests always yield identical artifacts.
//
// Config key "fail" takes a comma-separated list of platforms whose builds
// are reported as failed.
type Builder struct {
	fail map[ir.PlatformID]bool
}

func New(config map[string]string) *Builder {
	b := &Builder{fail: make(map[ir.PlatformID]bool)}
	for _, p := range strings.Split(config["fail"], ",") {
		if p = strings.TrimSpace(p); p != "" {
			b.fail[ir.PlatformID(p)] = true
		}
	}
	return b
}

func (b *Builder) Name() string { return "null" }

func (b *Builder) Build(ctx context.Context, req *ir.BuildRequest) (*ir.BuildArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.fail[req.Platform] {
		return nil, fmt.Errorf("null builder configured to fail on %s", req.Platform)
	}

	sum := RequestDigest(req)
	return &ir.BuildArtifact{
		Platform: req.Platform,
		Builder:  b.Name(),
		ID:       fmt.Sprintf("null-%s", sum[:16]),
		Location: fmt.Sprintf("null://%s/%s", req.PackageName, req.Platform),
		Digest:   "sha256:" + sum,
	}, nil
}

// RequestDigest returns the hex sha256 of the request's identifying fields.
func RequestDigest(req *ir.BuildRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "package=%s\nsource=%s\nplatform=%s\n", req.PackageName, req.SourcePath, req.Platform)

	names := make([]string, 0, len(req.ExtraInputs))
	for n := range req.ExtraInputs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(h, "input=%s@%s\n", n, req.ExtraInputs[n].Revision)
	}
	for _, t := range req.Toolchain {
		fmt.Fprintf(h, "toolchain=%s\n", t)
	}
	return hex.EncodeToString(h.Sum(nil))
}
