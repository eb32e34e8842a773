// Standard attribute keys for the training workflows.
//
// Keys follow a dotted hierarchical convention ("model.key", "data.rows")
// so log lines from the cloud, the parser, the trainer and the exporters
// can be filtered together.

package log

// Component and operation context.
const (
	// ComponentKey identifies which component emitted the record.
	// Examples: "cloud", "frame.parser", "gbm.trainer", "export"
	ComponentKey = "ml.component"

	// OperationKey names the workflow step being performed.
	OperationKey = "ml.operation"

	// VariantKey names the application variant ("regression", "example").
	VariantKey = "app.variant"

	// RunLabelKey is the free-form label appended to exported file names.
	RunLabelKey = "app.when"
)

// Cloud and store context.
const (
	CloudNameKey    = "cloud.name"
	CloudSizeKey    = "cloud.size"
	CloudStateKey   = "cloud.state"
	StoreSizeKey    = "store.size"
	StoreKeyKey     = "store.key"
	RESTAddrKey     = "rest.addr"
	TimeoutMsKey    = "cloud.timeout_ms"
	InitialKeyCount = "store.initial_keys"
)

// Data shape.
const (
	// FrameKeyKey is the store key of a parsed frame.
	FrameKeyKey = "frame.key"

	// PathKey is a filesystem path being read or written.
	PathKey = "file.path"

	// SamplesKey indicates the number of rows in the dataset.
	SamplesKey = "data.rows"

	// FeaturesKey indicates the number of predictor columns.
	FeaturesKey = "data.features"

	// ColumnsKey indicates the number of columns in a parsed frame.
	ColumnsKey = "data.columns"
)

// Model, hyperparameters and metrics.
const (
	ModelKeyKey        = "model.key"
	CategoryKey        = "model.category"
	DistributionKey    = "model.distribution"
	HyperParamsKey     = "model.hyperparams"
	ResponseColumnKey  = "model.response_column"
	IgnoredColumnsKey  = "model.ignored_columns"
	NTreesKey          = "hyperparams.ntrees"
	MaxDepthKey        = "hyperparams.max_depth"
	LearnRateKey       = "hyperparams.learn_rate"
	MinRowsKey         = "hyperparams.min_rows"
	MinSplitImprovKey  = "hyperparams.min_split_improvement"
	IterationKey       = "training.iteration"
	LossKey            = "metrics.loss"
	DurationMsKey      = "perf.duration_ms"
	ProgressKey        = "job.progress"
	JobKeyKey          = "job.key"
	SuggestionKey      = "error.suggestion"
	ErrorCodeKey       = "error.code"
)

// Standard attribute values.
const (
	OperationBootstrap = "bootstrap"
	OperationParse     = "parse"
	OperationTrain     = "train"
	OperationExport    = "export"
	OperationCleanup   = "cleanup"

	ErrorCloudTimeout = "CLOUD_TIMEOUT"
	ErrorIngest       = "INGEST_FAILED"
	ErrorTraining     = "TRAINING_FAILED"
	ErrorExport       = "EXPORT_FAILED"
	ErrorConfig       = "INVALID_CONFIG"
)
