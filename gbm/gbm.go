// Package gbm builds gradient boosted tree models on frames held in the
// cloud's store.
//
// A build is started with TrainModel and runs on its own goroutine; the
// returned Job is stored next to the frame and model so the REST status API
// can report on it.
//
//	b := gbm.New(params, cloud.Store())
//	job := b.TrainModel(ctx)
//	model, err := job.Get(ctx)
package gbm

import (
	"context"
	"math/rand"
	"time"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/frame"
	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

// GBM is a model builder bound to a store.
type GBM struct {
	params Parameters
	store  *cluster.Store
	logger log.Logger
}

// Option configures a GBM builder.
type Option func(*GBM)

// WithLogger sets the builder's logger.
func WithLogger(l log.Logger) Option {
	return func(g *GBM) { g.logger = l }
}

// New returns a builder for params reading its training frame from store.
func New(params Parameters, store *cluster.Store, opts ...Option) *GBM {
	g := &GBM{
		params: params,
		store:  store,
		logger: log.GetLoggerWithName("gbm"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Params returns the builder's parameters.
func (g *GBM) Params() Parameters { return g.params }

// TrainModel starts the build and returns immediately. The job is put in the
// store under its key; the model is put under the job's model key when the
// build succeeds. Cancelling ctx stops the build.
func (g *GBM) TrainModel(ctx context.Context) *Job {
	modelKey := cluster.Key(g.params.ModelID)
	if modelKey == "" {
		modelKey = cluster.RandomKey("GBM_model")
	}

	runCtx, cancel := context.WithCancel(ctx)
	job := newJob(modelKey, cancel)
	g.store.Put(job.Key(), job)

	go func() {
		defer cancel()
		job.start()
		model, err := g.train(runCtx, job)
		if err != nil {
			model = nil
		} else {
			g.store.Put(modelKey, model)
		}
		job.finish(model, err)
	}()
	return job
}

func (g *GBM) train(ctx context.Context, job *Job) (model *Model, err error) {
	defer errors.Recover(&err, "gbm.TrainModel")

	if err := g.params.Validate(); err != nil {
		return nil, err
	}
	f, err := cluster.Get[*frame.Frame](g.store, g.params.TrainingFrame)
	if err != nil {
		return nil, errors.Wrapf(err, "training frame %s", g.params.TrainingFrame)
	}
	data, err := prepare(f, g.params)
	if err != nil {
		return nil, err
	}

	seed := g.params.Seed
	if seed == -1 {
		seed = rand.Int63()
	}

	logger := g.logger.With(log.ModelKeyKey, job.ModelKey().String(), log.JobKeyKey, job.Key().String())
	logger.Info("Building GBM model",
		log.FrameKeyKey, f.Key().String(),
		log.SamplesKey, data.rows(),
		log.FeaturesKey, len(data.names),
		log.DistributionKey, string(data.distribution),
		log.NTreesKey, g.params.NTrees,
	)

	start := time.Now()
	t := newTrainer(g.params, data, seed, logger)
	t.progress = job.setProgress

	model = &Model{
		Key:    job.ModelKey(),
		Params: g.params,
		Output: Output{
			Names:          data.names,
			Domains:        data.domains,
			ResponseDomain: data.responseDomain,
			Category:       data.category,
			Distribution:   data.distribution,
			Seed:           seed,
		},
	}
	if err := t.train(ctx, &model.Output); err != nil {
		return nil, err
	}
	model.Output.RunTime = time.Since(start)

	logger.Info("GBM model built",
		log.CategoryKey, string(model.Category()),
		log.LossKey, model.Loss(),
		log.DurationMsKey, model.Output.RunTime.Milliseconds(),
	)
	return model, nil
}
