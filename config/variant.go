package config

import (
	"fmt"
	"time"
)

// Variant describes one of the training programs.
type Variant struct {
	Name string
	// Program is the binary name used in help output.
	Program string
	// ModelPrefix is joined with ntrees and max_depth to name the model.
	ModelPrefix  string
	CloudTimeout time.Duration
	// ExportBinary writes the zip and h2o files after the parameter file.
	ExportBinary bool
	// Cleanup removes the model and frame from the store after export.
	Cleanup bool
	// NamedKeys stores the frame under its file name and the model under
	// its model name; otherwise both get random keys.
	NamedKeys bool
	Defaults  TrainingConfig
}

var sharedIgnored = []string{"Group", "EventTime", "EventIndex", "DTA"}

func ignoring(cols ...string) []string {
	return append(append([]string(nil), sharedIgnored...), cols...)
}

// Regression predicts TTATA and exports every artefact.
var Regression = Variant{
	Name:         "regression",
	Program:      "gbm_regression",
	ModelPrefix:  "GBMRegression",
	CloudTimeout: 30 * time.Second,
	ExportBinary: true,
	NamedKeys:    true,
	Defaults: withHyperDefaults(TrainingConfig{
		Train:          "../csv/small.csv",
		NTrees:         30,
		MaxDepth:       10,
		When:           "now",
		ResponseColumn: "TTATA",
		IgnoredColumns: ignoring("Target", "Fraction"),
	}),
}

// Example predicts Target and cleans the store up afterwards.
var Example = Variant{
	Name:         "example",
	Program:      "gbm_example",
	ModelPrefix:  "GBM",
	CloudTimeout: 10 * time.Second,
	Cleanup:      true,
	Defaults: withHyperDefaults(TrainingConfig{
		Train:          "../csv/small.csv",
		NTrees:         80,
		MaxDepth:       16,
		When:           "now",
		ResponseColumn: "Target",
		IgnoredColumns: ignoring("TTATA", "Fraction"),
	}),
}

func withHyperDefaults(c TrainingConfig) TrainingConfig {
	c.LearnRate = 0.09
	c.MinRows = 9
	c.MinSplitImprovement = 1e-8
	c.NBins = 20
	c.Seed = -1
	c.SampleRate = 1.0
	c.ColSampleRate = 1.0
	c.ScoreTreeInterval = 1
	return c
}

// ModelName returns <prefix>_<ntrees>_<max_depth>.
func (v Variant) ModelName(c TrainingConfig) string {
	return fmt.Sprintf("%s_%d_%d", v.ModelPrefix, c.NTrees, c.MaxDepth)
}
