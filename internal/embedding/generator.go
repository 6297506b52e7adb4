// Package embedding turns text into unit-length dense vectors.
//
// A Generator wraps one local Model that is loaded lazily, at most once.
// When the model cannot be loaded, or fails on a given input, the
// generator answers with HashEmbedding instead of returning an error, so
// callers keep working with degraded accuracy.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/cache"
	"github.com/yoockh/yoomemory/internal/logger"
)

const (
	DefaultDimensions = 384
	FallbackModelID   = "fallback-hash-v1"
	DefaultCacheTTL   = time.Hour
)

var ErrModelUnavailable = errors.New("embedding model unavailable")

// Model is a loaded embedding model. Implementations need not be safe for
// concurrent use; the Generator never calls Embed concurrently.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ID() string
}

// Loader builds the model. It runs at most once per Generator.
type Loader func() (Model, error)

type Config struct {
	Dimensions int
	CacheTTL   time.Duration
}

// Result is one embedding together with the model that produced it.
type Result struct {
	Vector []float32 `json:"v"`
	Model  string    `json:"m"`
}

type Generator struct {
	load  Loader
	cache cache.Cache
	ttl   time.Duration
	dims  int
	log   *logrus.Logger

	once    sync.Once
	model   Model
	loadErr error

	// one in-flight model computation at a time
	mu sync.Mutex
}

// NewGenerator does not load the model; the first Generate call does.
// cache may be nil.
func NewGenerator(load Loader, c cache.Cache, cfg Config, log *logrus.Logger) *Generator {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Discard()
	}
	if load == nil {
		load = func() (Model, error) { return nil, ErrModelUnavailable }
	}
	return &Generator{load: load, cache: c, ttl: cfg.CacheTTL, dims: cfg.Dimensions, log: log}
}

func (g *Generator) init() {
	g.once.Do(func() {
		start := time.Now()
		m, err := g.load()
		if err == nil && m == nil {
			err = ErrModelUnavailable
		}
		if err != nil {
			g.loadErr = err
			g.log.WithFields(logrus.Fields{
				"component": "embedding",
				"fallback":  FallbackModelID,
			}).WithError(err).Warn("embedding model failed to load, using hash fallback")
			return
		}
		g.model = m
		g.dims = m.Dimensions()
		g.log.WithFields(logrus.Fields{
			"component":  "embedding",
			"model":      m.ID(),
			"dimensions": m.Dimensions(),
			"load_ms":    time.Since(start).Milliseconds(),
		}).Info("embedding model loaded")
	})
}

// Ready loads the model if needed and reports whether the real model (as
// opposed to the fallback) is serving.
func (g *Generator) Ready() bool {
	g.init()
	return g.model != nil
}

// ModelID names whatever is currently producing vectors.
func (g *Generator) ModelID() string {
	g.init()
	if g.model != nil {
		return g.model.ID()
	}
	return FallbackModelID
}

func (g *Generator) Dimensions() int {
	g.init()
	return g.dims
}

// Generate embeds text. The only error it returns is ctx's.
func (g *Generator) Generate(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	g.init()

	modelID := g.ModelID()
	key := cacheKey(modelID, text)
	if g.cache != nil {
		var hit Result
		if ok, err := g.cache.GetJSON(ctx, key, &hit); err == nil && ok && len(hit.Vector) == g.dims {
			return hit, nil
		}
	}

	res := g.compute(ctx, text)
	if g.cache != nil && res.Model == modelID {
		if err := g.cache.SetJSON(ctx, key, res, g.ttl); err != nil {
			g.log.WithField("component", "embedding").WithError(err).Debug("embedding cache set failed")
		}
	}
	return res, nil
}

func (g *Generator) compute(ctx context.Context, text string) Result {
	if g.model == nil {
		return Result{Vector: HashEmbedding(text, g.dims), Model: FallbackModelID}
	}

	g.mu.Lock()
	vec, err := g.model.Embed(ctx, text)
	g.mu.Unlock()
	if err == nil {
		switch {
		case len(vec) != g.dims:
			err = errors.New("unexpected embedding dimension")
		case !hasDirection(vec):
			// text with no tokens the model knows, such as emoji only
			err = errors.New("zero or non-finite embedding")
		}
	}
	if err != nil {
		g.log.WithFields(logrus.Fields{
			"component": "embedding",
			"model":     g.model.ID(),
		}).WithError(err).Warn("model embed failed, using hash fallback")
		return Result{Vector: HashEmbedding(text, g.dims), Model: FallbackModelID}
	}
	return Result{Vector: Normalize(vec), Model: g.model.ID()}
}

// hasDirection reports whether v has a finite, non-zero norm.
func hasDirection(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum > 0 && !math.IsInf(sum, 0) && !math.IsNaN(sum)
}

// GenerateBatch embeds texts one after another. errs[i] is non-nil only
// when ctx ended before item i was reached.
func (g *Generator) GenerateBatch(ctx context.Context, texts []string) ([]Result, []error) {
	out := make([]Result, len(texts))
	errs := make([]error, len(texts))
	for i, t := range texts {
		out[i], errs[i] = g.Generate(ctx, t)
	}
	return out, errs
}

func cacheKey(modelID, text string) string {
	sum := sha256.Sum256([]byte(modelID + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}
