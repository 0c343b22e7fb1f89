package index

import (
	"math"

	"github.com/hyperjump/bekutoru/internal/apperr"
)

// defaultSeed seeds per-index RNGs so builds are reproducible.
const defaultSeed int64 = 42

type ivfConfig struct {
	NClusters    int     // explicit cluster count; 0 derives from ClusterRatio
	ClusterRatio float64 // applied to current size at build time
	NProbes      int
	MaxIter      int
	Tolerance    float64
	Seed         int64
}

type nswConfig struct {
	M              int
	EfConstruction int
	EfSearch       int
	Seed           int64
}

func parseIVFParams(params map[string]any) (ivfConfig, error) {
	cfg := ivfConfig{
		ClusterRatio: 0.05,
		NProbes:      1,
		MaxIter:      25,
		Tolerance:    1e-4,
		Seed:         defaultSeed,
	}
	var err error
	if cfg.NClusters, err = intParam(params, "n_clusters", cfg.NClusters); err != nil {
		return cfg, err
	}
	if cfg.ClusterRatio, err = floatParam(params, "cluster_ratio", cfg.ClusterRatio); err != nil {
		return cfg, err
	}
	if cfg.NProbes, err = intParam(params, "n_probes", cfg.NProbes); err != nil {
		return cfg, err
	}
	if cfg.MaxIter, err = intParam(params, "max_iter", cfg.MaxIter); err != nil {
		return cfg, err
	}
	if cfg.Tolerance, err = floatParam(params, "tolerance", cfg.Tolerance); err != nil {
		return cfg, err
	}
	seed, err := intParam(params, "seed", int(defaultSeed))
	if err != nil {
		return cfg, err
	}
	cfg.Seed = int64(seed)
	if cfg.NClusters < 0 || cfg.NProbes < 1 || cfg.MaxIter < 1 || cfg.Tolerance <= 0 {
		return cfg, apperr.New(apperr.KindInvalidRequest, "invalid ivf index params")
	}
	return cfg, nil
}

func parseNSWParams(params map[string]any) (nswConfig, error) {
	cfg := nswConfig{
		M:              16,
		EfConstruction: 100,
		EfSearch:       50,
		Seed:           defaultSeed,
	}
	var err error
	if cfg.M, err = intParam(params, "m", cfg.M); err != nil {
		return cfg, err
	}
	if cfg.EfConstruction, err = intParam(params, "ef_construction", cfg.EfConstruction); err != nil {
		return cfg, err
	}
	if cfg.EfSearch, err = intParam(params, "ef_search", cfg.EfSearch); err != nil {
		return cfg, err
	}
	seed, err := intParam(params, "seed", int(defaultSeed))
	if err != nil {
		return cfg, err
	}
	cfg.Seed = int64(seed)
	if cfg.M < 1 || cfg.EfConstruction < 1 || cfg.EfSearch < 1 {
		return cfg, apperr.New(apperr.KindInvalidRequest, "invalid nsw index params")
	}
	return cfg, nil
}

func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, apperr.New(apperr.KindInvalidRequest, "index param %s must be an integer", key)
	}
	return int(f), nil
}

func floatParam(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, apperr.New(apperr.KindInvalidRequest, "index param %s must be a number", key)
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
