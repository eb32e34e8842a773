// Package analysis trains gradient boosting machine models on event data
// stored in CSV files and exports the fitted models for later scoring.
//
// A run boots an in-process cloud (a key/value store of frames, models
// and jobs with a small REST surface), imports the training file into a
// frame, fits a GBM on one response column and writes the model
// parameters, metrics, a MOJO archive and a binary snapshot under a work
// directory.
//
// # Packages
//
//   - cluster: the cloud, its key/value store and the REST listener
//   - frame: CSV ingestion into typed columns (numeric, enum, time, string)
//   - gbm: parameters, distributions, tree growth, prediction and jobs
//   - metrics: regression and classification metrics on gonum vectors
//   - export: parameter JSON, metric logs, MOJO zip, binary model, history
//   - config: the two program variants and their command-line/YAML layer
//   - app: the run sequence shared by the example programs
//
// # Quick Start
//
// The two programs under examples/ differ only in their variant:
//
//	gbm_regression train.csv 30 10 20240101
//	gbm_example --log-format console train.csv
//
// Programmatic use goes through a cloud:
//
//	cloud := cluster.New(cluster.Options{})
//	fr, err := frame.ParseCSV(ctx, cloud.Store(), "train.csv")
//	...
//	params.TrainingFrame = fr.Key()
//	job := gbm.New(params, cloud.Store()).TrainModel(ctx)
//	model, err := job.Get(ctx)
//
// # Logging
//
// Every package logs through pkg/log, a structured zerolog-backed logger.
// Use log.SetupLogger to pick the level and the JSON or console format.
package analysis
