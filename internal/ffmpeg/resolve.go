package ffmpeg

import (
	"fmt"
)

// binaryName is the base name of the ffmpeg binary looked up on PATH.
const binaryName = "ffmpeg"

// Resolver locates the ffmpeg binary. The deployment image is expected to
// ship one; there is no download fallback.
type Resolver struct {
	stat fileStatter
	path pathLooker
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFileStatter sets the file statter implementation.
func WithFileStatter(s fileStatter) ResolverOption {
	return func(r *Resolver) { r.stat = s }
}

// WithPathLooker sets the PATH lookup implementation.
func WithPathLooker(p pathLooker) ResolverOption {
	return func(r *Resolver) { r.path = p }
}

// NewResolver creates a Resolver with the given options.
// Uses production defaults if no options are provided.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		stat: osFileStatter{},
		path: osPathLooker{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds ffmpeg using the following precedence:
//  1. custom path from configuration (error if set but missing)
//  2. system PATH
//
// A configured path that does not exist is an error rather than a silent
// fallback, so a typoed override never runs a different binary.
func (r *Resolver) Resolve(custom string) (string, error) {
	if custom != "" {
		if _, err := r.stat.Stat(custom); err != nil {
			return "", fmt.Errorf("%w: configured path %q: %v", ErrNotFound, custom, err)
		}
		return custom, nil
	}

	found, err := r.path.LookPath(binaryName)
	if err != nil {
		return "", fmt.Errorf("%w: not on PATH (install ffmpeg or set SEGMENTER_FFMPEG)", ErrNotFound)
	}
	return found, nil
}
