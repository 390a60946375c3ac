package tracker

import (
	"testing"

	"github.com/etvr-go/trackingd/internal/config"
)

func TestBuildChain_BuildsOneAlgorithmPerOrderEntry(t *testing.T) {
	cfg := config.AlgorithmConfig{
		Order: []config.Algorithm{config.AlgorithmHSF, config.AlgorithmBlob, config.AlgorithmRANSAC},
		HSF:   config.HSFParams{Radius: 20, StepX: 5, StepY: 5},
		Blob:  config.BlobParams{Threshold: 65, MinSize: 2, MaxSize: 25},
	}

	chain, err := buildChain("left_eye", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer chain.Close()
}

func TestBuildChain_RejectsUnknownAlgorithm(t *testing.T) {
	cfg := config.AlgorithmConfig{Order: []config.Algorithm{config.Algorithm("NOT_REAL")}}
	if _, err := buildChain("left_eye", cfg); err == nil {
		t.Error("expected an error for an unknown algorithm name")
	}
}
