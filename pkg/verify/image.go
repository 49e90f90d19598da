package verify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// ImageChecker asks a registry whether an image can serve a platform,
// before a runtime spends minutes pulling it only to fail.
type ImageChecker struct {
	get func(ref name.Reference, options ...remote.Option) (*remote.Descriptor, error)
}

func NewImageChecker() *ImageChecker {
	return &ImageChecker{get: remote.Get}
}

// PlatformSupported reports whether image has a manifest for platform.
func (c *ImageChecker) PlatformSupported(ctx context.Context, image, platform string) (bool, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return false, fmt.Errorf("unable to parse image reference %s: %w", image, err)
	}
	want, err := v1.ParsePlatform(platform)
	if err != nil {
		return false, fmt.Errorf("unable to parse platform %s: %w", platform, err)
	}

	desc, err := c.get(ref, remote.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("unable to fetch descriptor for %s: %w", image, err)
	}

	if desc.MediaType.IsIndex() {
		index, err := v1.ParseIndexManifest(bytes.NewReader(desc.Manifest))
		if err != nil {
			return false, fmt.Errorf("unable to parse index manifest for %s: %w", image, err)
		}
		for _, m := range index.Manifests {
			if m.Platform == nil {
				continue
			}
			if m.Platform.OS == want.OS && m.Platform.Architecture == want.Architecture {
				return true, nil
			}
		}
		return false, nil
	}

	// Single-platform image: the platform lives in the config blob.
	img, err := desc.Image()
	if err != nil {
		return false, fmt.Errorf("unable to load image %s: %w", image, err)
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return false, fmt.Errorf("unable to load config for %s: %w", image, err)
	}
	return cfg.OS == want.OS && cfg.Architecture == want.Architecture, nil
}
