package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kk-code-lab/kitcat/internal/clock"
	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/manifest"
)

// Options configures the engine.
type Options struct {
	Algorithm digest.Algorithm
	Logger    *zap.SugaredLogger
	Clock     clock.Clock
}

// Engine splits files into parts and reassembles them. It keeps no state between
// calls, so one Engine may serve concurrent operations on different directories.
type Engine struct {
	alg   digest.Algorithm
	log   *zap.SugaredLogger
	clock clock.Clock
}

// New creates an engine instance.
func New(opts Options) (*Engine, error) {
	alg, err := digest.ParseAlgorithm(string(opts.Algorithm))
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Engine{
		alg:   alg,
		log:   opts.Logger,
		clock: opts.Clock,
	}, nil
}

// Algorithm returns the digest algorithm used for new splits.
func (e *Engine) Algorithm() digest.Algorithm {
	return e.alg
}

// WriteManifest builds the manifest for a split and persists it at path.
func (e *Engine) WriteManifest(ctx context.Context, path string, res *SplitResult) (*manifest.Manifest, error) {
	if res == nil {
		return nil, fmt.Errorf("engine: nil split result")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	man := res.Manifest()
	if err := manifest.Write(path, man); err != nil {
		return nil, err
	}
	e.log.Infow("manifest written", "path", path, "file", man.MainFile.Name, "parts", len(man.Parts))
	return man, nil
}

// ReadManifest loads a manifest. See manifest.Read for the error contract.
func (e *Engine) ReadManifest(path string) (*manifest.Manifest, error) {
	return manifest.Read(path)
}

func (e *Engine) since(start time.Time) int64 {
	return e.clock.Now().Sub(start).Milliseconds()
}
