package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/config"
	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

func writeSmallCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Group,EventTime,EventIndex,DTA,TTATA,Fraction,Target,X1,X2\n")
	for i := 0; i < 60; i++ {
		target := "no"
		if i >= 30 {
			target = "yes"
		}
		fmt.Fprintf(&b, "g%d,%d,%d,0.%d,%.1f,0.%d,%s,%d,%d\n",
			i%2, 1000+i, i, i%10, float64(2*i)+0.5, i%10, target, i, i%3)
	}
	path := filepath.Join(t.TempDir(), "small.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, v config.Variant, train string) *config.Config {
	t.Helper()
	tc := v.Defaults
	tc.Train = train
	tc.NTrees = 3
	tc.MaxDepth = 2
	tc.Seed = 1
	return &config.Config{
		Variant:   v,
		Training:  tc,
		LogLevel:  "info",
		LogFormat: "json",
		WorkDir:   filepath.Join(t.TempDir(), "work"),
	}
}

func newCloud(t *testing.T) *cluster.Cloud {
	t.Helper()
	c := cluster.New(cluster.Options{Name: "test", Logger: log.NewNopLogger()})
	t.Cleanup(func() { c.Shutdown(context.Background(), 0) })
	return c
}

func TestRunRegression(t *testing.T) {
	cfg := testConfig(t, config.Regression, writeSmallCSV(t))
	logger, _ := log.NewTestLogger(log.LevelInfo)
	cloud := newCloud(t)

	res, err := Run(context.Background(), cloud, cfg, logger)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Aborted {
		t.Fatal("run should complete")
	}
	if cloud.State() != cluster.StateReady || !cloud.RESTReady() {
		t.Errorf("cloud state = %s", cloud.State())
	}

	if res.FrameKey != "small.csv" || res.ModelKey != "GBMRegression_3_2" {
		t.Errorf("keys = %q %q", res.FrameKey, res.ModelKey)
	}
	if _, ok := cloud.Store().Lookup("GBMRegression_3_2"); !ok {
		t.Error("model should stay in the store")
	}
	// TTATA runs 0.5..118.5; predicting its mean gives an MAE of 30
	if mae := res.Model.MAE(); mae >= 30 {
		t.Errorf("MAE() = %v, want better than the mean predictor", mae)
	}

	basename := filepath.Join(cfg.WorkDir, "GBMRegression_3_2_now")
	for _, suffix := range []string{".json", ".zip", ".h2o"} {
		if _, err := os.Stat(basename + suffix); err != nil {
			t.Errorf("%s missing: %v", suffix, err)
		}
	}

	msgs := logger.Messages()
	want := []string{"*** when", "*** train", "*** ntrees", "*** max_depth", "*** learn_rate",
		"*** min_rows", "*** min_split_improvement", "*** length", "*** ignoredColumns", "*** frame_train"}
	if len(msgs) < len(want) || !reflect.DeepEqual(msgs[:len(want)], want) {
		t.Errorf("first messages = %v, want %v", msgs, want)
	}
	for _, m := range []string{"*** Category", "*** mae", "*** loss", "*** r2", "*** mse", "*** basename"} {
		if !logger.ContainsMessage(m) {
			t.Errorf("%q not logged", m)
		}
	}
	if !logger.ContainsField(log.NTreesKey, 3.0) || !logger.ContainsField(log.VariantKey, "regression") {
		t.Error("configured values should be logged as fields")
	}
}

func TestRunExampleCleansUp(t *testing.T) {
	cfg := testConfig(t, config.Example, writeSmallCSV(t))
	logger, _ := log.NewTestLogger(log.LevelInfo)
	cloud := newCloud(t)

	res, err := Run(context.Background(), cloud, cfg, logger)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Aborted || res.Model == nil {
		t.Fatal("run should complete")
	}
	if res.FrameKey == "small.csv" {
		t.Error("example variant should use a random frame key")
	}
	for _, k := range []cluster.Key{res.FrameKey, res.ModelKey} {
		if _, ok := cloud.Store().Lookup(k); ok {
			t.Errorf("%s should be removed after export", k)
		}
	}

	basename := filepath.Join(cfg.WorkDir, "GBM_3_2_now")
	if _, err := os.Stat(basename + ".json"); err != nil {
		t.Errorf("parameters missing: %v", err)
	}
	if _, err := os.Stat(basename + ".zip"); !os.IsNotExist(err) {
		t.Error("example variant should not write the archive")
	}
	for _, m := range []string{"*** AUC", "*** logloss", "*** mean_per_class_error"} {
		if !logger.ContainsMessage(m) {
			t.Errorf("%q not logged", m)
		}
	}
}

func TestRunIngestFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")
	cfg := testConfig(t, config.Example, missing)
	logger, _ := log.NewTestLogger(log.LevelInfo)

	res, err := Run(context.Background(), newCloud(t), cfg, logger)
	if err != nil {
		t.Fatalf("ingest failure should not be fatal: %v", err)
	}
	if !res.Aborted {
		t.Error("run should be aborted")
	}
	if !logger.ContainsMessage("Error importing file: " + missing) {
		t.Error("ingest failure should be logged")
	}
	if _, err := os.Stat(cfg.WorkDir); !os.IsNotExist(err) {
		t.Error("nothing should be exported")
	}
}

func TestRunTrainingFailure(t *testing.T) {
	cfg := testConfig(t, config.Regression, writeSmallCSV(t))
	cfg.Training.ResponseColumn = "Missing"
	logger, _ := log.NewTestLogger(log.LevelInfo)

	res, err := Run(context.Background(), newCloud(t), cfg, logger)
	if err != nil {
		t.Fatalf("training failure should not be fatal: %v", err)
	}
	if !res.Aborted || res.Model != nil {
		t.Errorf("result = %+v", res)
	}
	if !logger.ContainsMessage("Error training model") {
		t.Error("training failure should be logged")
	}
}

func TestRunExportFailureContinues(t *testing.T) {
	cfg := testConfig(t, config.Regression, writeSmallCSV(t))
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.WorkDir = blocker
	logger, _ := log.NewTestLogger(log.LevelInfo)

	res, err := Run(context.Background(), newCloud(t), cfg, logger)
	if err != nil {
		t.Fatalf("export failure should not be fatal: %v", err)
	}
	if res.Aborted || res.Model == nil {
		t.Error("the run should complete")
	}
	if !logger.ContainsMessage("Error exporting model") {
		t.Error("export failure should be logged")
	}
}

func TestRunBootstrapFailureIsFatal(t *testing.T) {
	cloud := newCloud(t)
	cloud.Shutdown(context.Background(), 0)

	_, err := Run(context.Background(), cloud, testConfig(t, config.Regression, "x.csv"), log.NewNopLogger())
	if !errors.Is(err, errors.ErrCloudShutdown) {
		t.Errorf("Run() error = %v, want ErrCloudShutdown", err)
	}
}
