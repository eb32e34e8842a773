// Package config builds the run configuration of the training programs from
// variant defaults, an optional YAML overlay and the command line.
package config

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alexflint/go-arg"
	"gopkg.in/yaml.v3"

	"github.com/mannetroll/analysis/cluster"
	"github.com/mannetroll/analysis/gbm"
	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

// TrainingConfig holds the values one training run is built from.
type TrainingConfig struct {
	Train               string   `yaml:"train"`
	NTrees              int      `yaml:"ntrees"`
	MaxDepth            int      `yaml:"max_depth"`
	LearnRate           float64  `yaml:"learn_rate"`
	MinRows             float64  `yaml:"min_rows"`
	MinSplitImprovement float64  `yaml:"min_split_improvement"`
	ResponseColumn      string   `yaml:"response_column"`
	IgnoredColumns      []string `yaml:"ignored_columns"`
	When                string   `yaml:"when"`

	NBins             int     `yaml:"nbins"`
	Seed              int64   `yaml:"seed"`
	SampleRate        float64 `yaml:"sample_rate"`
	ColSampleRate     float64 `yaml:"col_sample_rate"`
	ScoreTreeInterval int     `yaml:"score_tree_interval"`
}

// Parameters turns the configuration into GBM build parameters.
func (c TrainingConfig) Parameters(modelID string, train cluster.Key) gbm.Parameters {
	p := gbm.DefaultParameters()
	p.ModelID = modelID
	p.TrainingFrame = train
	p.ResponseColumn = c.ResponseColumn
	p.IgnoredColumns = append([]string(nil), c.IgnoredColumns...)
	p.NTrees = c.NTrees
	p.MaxDepth = c.MaxDepth
	p.LearnRate = c.LearnRate
	p.MinRows = c.MinRows
	p.MinSplitImprovement = c.MinSplitImprovement
	p.NBins = c.NBins
	p.Seed = c.Seed
	p.SampleRate = c.SampleRate
	p.ColSampleRate = c.ColSampleRate
	p.ScoreTreeInterval = c.ScoreTreeInterval
	return p
}

// Validate checks the configuration, including that the response column is
// not also ignored.
func (c TrainingConfig) Validate() error {
	if strings.TrimSpace(c.Train) == "" {
		return errors.NewValidationError("train", "must be set", c.Train)
	}
	if strings.TrimSpace(c.When) == "" {
		return errors.NewValidationError("when", "must be set", c.When)
	}
	return c.Parameters("", "").Validate()
}

// Config is the resolved configuration of one run.
type Config struct {
	Variant    Variant
	Training   TrainingConfig
	ConfigFile string
	LogLevel   string
	LogFormat  string
	WorkDir    string
	RESTAddr   string

	// ScoringHistory also exports the scoring history as CSV and PNG.
	ScoringHistory bool
}

// Args are the command line flags.
type Args struct {
	Config     string   `arg:"--config" help:"YAML file overlaying the built-in defaults"`
	LogLevel   string   `arg:"--log-level,env:GBM_LOG_LEVEL" help:"debug, info, warn or error"`
	LogFormat  string   `arg:"--log-format" help:"json or console"`
	WorkDir    string   `arg:"--work-dir" help:"directory the exported files are written to"`
	RESTAddr   string   `arg:"--rest-addr" help:"address of the REST status API; empty leaves it unbound"`
	Scoring    bool     `arg:"--scoring-history" help:"also write the scoring history as CSV and PNG"`
	Positional []string `arg:"positional" help:"TRAIN [NTREES MAX_DEPTH WHEN]"`
}

func defaultArgs() Args {
	return Args{
		LogLevel:  "info",
		LogFormat: log.FormatJSON,
		WorkDir:   "./work",
	}
}

func newParser(v Variant, args *Args) (*arg.Parser, error) {
	p, err := arg.NewParser(arg.Config{Program: v.Program}, args)
	if err != nil {
		return nil, errors.Wrap(err, "build argument parser")
	}
	return p, nil
}

// WriteHelp prints the usage of the variant's program.
func WriteHelp(v Variant, w io.Writer) {
	args := defaultArgs()
	if p, err := newParser(v, &args); err == nil {
		p.WriteHelp(w)
	}
}

// IsHelp reports whether err asks for the help text.
func IsHelp(err error) bool {
	return errors.Is(err, arg.ErrHelp)
}

// FromArgs resolves the configuration for argv (without the program name).
//
// Positional arguments follow the variant's historical rule: none keeps the
// defaults, one sets the training file, four set the training file, ntrees,
// max_depth and the run label; any other count keeps the defaults.
func FromArgs(v Variant, argv []string) (*Config, error) {
	args := defaultArgs()
	p, err := newParser(v, &args)
	if err != nil {
		return nil, err
	}
	if err := p.Parse(argv); err != nil {
		if err == arg.ErrHelp {
			return nil, errors.WithStack(err)
		}
		return nil, errors.NewValidationError("args", err.Error(), strings.Join(argv, " "))
	}

	training := v.Defaults
	training.IgnoredColumns = append([]string(nil), v.Defaults.IgnoredColumns...)

	if args.Config != "" {
		if training, err = overlayFile(training, args.Config); err != nil {
			return nil, err
		}
	}
	if training, err = applyPositional(training, args.Positional); err != nil {
		return nil, err
	}

	if _, err := log.ParseLevel(args.LogLevel); err != nil {
		return nil, errors.NewValidationError("log-level", err.Error(), args.LogLevel)
	}
	switch args.LogFormat {
	case log.FormatJSON, log.FormatConsole:
	default:
		return nil, errors.NewValidationError("log-format", "must be json or console", args.LogFormat)
	}
	if err := training.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		Variant:    v,
		Training:   training,
		ConfigFile: args.Config,
		LogLevel:   args.LogLevel,
		LogFormat:  args.LogFormat,
		WorkDir:    args.WorkDir,
		RESTAddr:   args.RESTAddr,

		ScoringHistory: args.Scoring,
	}, nil
}

func overlayFile(c TrainingConfig, path string) (TrainingConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return c, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	return overlay(c, f)
}

// overlay decodes YAML from r on top of c. Keys absent from the document
// keep their value; unknown keys are an error.
func overlay(c TrainingConfig, r io.Reader) (TrainingConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return c, errors.NewValidationError("config", err.Error(), nil)
	}
	return c, nil
}

func applyPositional(c TrainingConfig, pos []string) (TrainingConfig, error) {
	switch len(pos) {
	case 1:
		c.Train = pos[0]
	case 4:
		ntrees, err := strconv.Atoi(pos[1])
		if err != nil {
			return c, errors.NewValidationError("ntrees", "must be an integer", pos[1])
		}
		depth, err := strconv.Atoi(pos[2])
		if err != nil {
			return c, errors.NewValidationError("max_depth", "must be an integer", pos[2])
		}
		c.Train, c.NTrees, c.MaxDepth, c.When = pos[0], ntrees, depth, pos[3]
	}
	return c, nil
}
