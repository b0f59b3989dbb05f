package docker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/jsonmessage"
)

type ecrTokenAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// publish uploads ref and returns its repository digest reference, if any.
func (b *Builder) publish(ctx context.Context, api imageAPI, ref string) (string, error) {
	auth, err := b.registryAuth(ctx)
	if err != nil {
		return "", err
	}

	rc, err := api.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return "", fmt.Errorf("failed to push image %s: %w", ref, err)
	}
	defer rc.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(rc, io.Discard, 0, false, nil); err != nil {
		return "", fmt.Errorf("image push failed: %w", err)
	}

	inspect, _, err := api.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to inspect pushed image: %w", err)
	}
	for _, d := range inspect.RepoDigests {
		if strings.HasPrefix(d, repository(ref)+"@") {
			return d, nil
		}
	}
	return "", nil
}

func (b *Builder) registryAuth(ctx context.Context) (string, error) {
	switch b.auth {
	case "":
		return "", nil
	case "ecr":
		api, err := b.ensureECR(ctx)
		if err != nil {
			return "", err
		}
		return ecrRegistryAuth(ctx, api)
	default:
		return "", fmt.Errorf("unknown docker registry_auth %q", b.auth)
	}
}

func (b *Builder) ensureECR(ctx context.Context) (ecrTokenAPI, error) {
	b.ecrOnce.Do(func() {
		if b.ecr != nil {
			return
		}
		var opts []func(*awsconfig.LoadOptions) error
		if b.region != "" {
			opts = append(opts, awsconfig.WithRegion(b.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			b.ecrErr = fmt.Errorf("unable to load AWS config: %w", err)
			return
		}
		b.ecr = ecr.NewFromConfig(cfg)
	})
	return b.ecr, b.ecrErr
}

// ecrRegistryAuth exchanges an ECR authorization token for the encoded
// credentials the Engine API expects.
func ecrRegistryAuth(ctx context.Context, api ecrTokenAPI) (string, error) {
	out, err := api.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get ECR authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return "", errors.New("ECR returned no authorization data")
	}

	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return "", fmt.Errorf("invalid ECR authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", errors.New("invalid ECR authorization token")
	}

	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      user,
		Password:      pass,
		ServerAddress: aws.ToString(data.ProxyEndpoint),
	})
}

// repository strips the tag from an image reference.
func repository(ref string) string {
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		return ref[:colon]
	}
	return ref
}
