package tracker

import (
	"fmt"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/detect"
	"github.com/etvr-go/trackingd/internal/detect/ahsf"
	"github.com/etvr-go/trackingd/internal/detect/blob"
	"github.com/etvr-go/trackingd/internal/detect/hsf"
	"github.com/etvr-go/trackingd/internal/detect/hsrac"
	"github.com/etvr-go/trackingd/internal/detect/leap"
	"github.com/etvr-go/trackingd/internal/detect/ransac"
)

func hsfParams(p config.HSFParams) hsf.Params {
	return hsf.Params{
		Radius:             p.Radius,
		StepX:              p.StepX,
		StepY:              p.StepY,
		SkipAutoRadius:     p.SkipAutoRadius,
		SkipBlinkDetection: p.SkipBlinkDetection,
		BlinkStatFrames:    p.BlinkStatFrames,
	}
}

// buildChain instantiates one detect.Algorithm per entry in order,
// closing over position, and wires them into a detect.Chain. Algorithms
// already running (from a prior chain) are not reused: a rebuild always
// starts every algorithm fresh, since calibration state (HSF's radius
// search, LEAP's blink history) is cheap to reacquire and keeping it
// correct across a live config change is not worth the complexity.
func buildChain(position string, cfg config.AlgorithmConfig) (*detect.Chain, error) {
	algorithms := make([]detect.Algorithm, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		algo, err := buildAlgorithm(position, name, cfg)
		if err != nil {
			return nil, err
		}
		algorithms = append(algorithms, algo)
	}
	return detect.NewChain(algorithms), nil
}

func buildAlgorithm(position string, name config.Algorithm, cfg config.AlgorithmConfig) (detect.Algorithm, error) {
	switch name {
	case config.AlgorithmHSF:
		return hsf.New(position, hsfParams(cfg.HSF)), nil
	case config.AlgorithmBlob:
		return blob.New(blob.Params{
			Threshold: cfg.Blob.Threshold,
			MinSize:   cfg.Blob.MinSize,
			MaxSize:   cfg.Blob.MaxSize,
		}), nil
	case config.AlgorithmAHSF:
		return ahsf.New(position, ahsf.Params{
			HSF:            hsfParams(cfg.AHSF.HSFParams),
			ExpansionRatio: cfg.AHSF.ExpansionRatio,
		}), nil
	case config.AlgorithmLEAP:
		d, err := leap.New(leap.Params{
			ModelPath:      cfg.LEAP.ModelPath,
			BlinkThreshold: cfg.LEAP.BlinkThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("tracker: building LEAP detector: %w", err)
		}
		return d, nil
	case config.AlgorithmHSRAC:
		return hsrac.New(), nil
	case config.AlgorithmRANSAC:
		return ransac.New(), nil
	default:
		return nil, fmt.Errorf("tracker: unknown algorithm %q", name)
	}
}
