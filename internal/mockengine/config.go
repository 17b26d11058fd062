// Package mockengine implements the Mock Strategy Engine (spec §4.C): a
// single generate(config, args) contract dispatching across static,
// template, faker, pattern, file, stateful, script, llm, database, and
// data_lake_crud generators.
package mockengine

// Strategy enumerates MockConfig.strategy, per spec §3.
type Strategy string

const (
	StrategyStatic    Strategy = "static"
	StrategyTemplate  Strategy = "template"
	StrategyRandom    Strategy = "random"
	StrategyStateful  Strategy = "stateful"
	StrategyScript    Strategy = "script"
	StrategyFile      Strategy = "file"
	StrategyPattern   Strategy = "pattern"
	StrategyLLM       Strategy = "llm"
	StrategyDatabase  Strategy = "database"
	StrategyDataLake  Strategy = "data_lake_crud"
)

// FileSelection enumerates the file strategy's selection mode.
type FileSelection string

const (
	SelectionRandom     FileSelection = "random"
	SelectionRoundRobin FileSelection = "round_robin"
	SelectionFirst      FileSelection = "first"
	SelectionLast       FileSelection = "last"
)

// StatefulOp enumerates the stateful strategy's operation.
type StatefulOp string

const (
	StatefulGet       StatefulOp = "get"
	StatefulSet       StatefulOp = "set"
	StatefulIncrement StatefulOp = "increment"
)

// DataLakeOp enumerates data_lake_crud's fixed operation set.
type DataLakeOp string

const (
	DataLakeCreate     DataLakeOp = "create"
	DataLakeReadByID   DataLakeOp = "read_by_id"
	DataLakeReadAll    DataLakeOp = "read_all"
	DataLakeReadFilter DataLakeOp = "read_filter"
	DataLakeUpdate     DataLakeOp = "update"
	DataLakeDelete     DataLakeOp = "delete"
)

// StatefulConfig is the `stateful` strategy's sub-config.
type StatefulConfig struct {
	Key       string          `json:"key"`
	Operation StatefulOp      `json:"operation"`
	Value     *MockConfig     `json:"value,omitempty"` // nested generator for set
	Delta     int64           `json:"delta,omitempty"`
}

// FileConfig is the `file` strategy's sub-config.
type FileConfig struct {
	Path      string        `json:"path"`
	Format    string        `json:"format,omitempty"` // ndjson | array | csv; inferred from extension if empty
	Selection FileSelection `json:"selection"`
	Index     int           `json:"index,omitempty"` // used when selection == "index"; "index:N" carries N inline
}

// LLMConfig is the `llm` strategy's sub-config.
type LLMConfig struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	APIKeyEnv    string  `json:"api_key_env,omitempty"`
}

// DatabaseConfig is the `database` strategy's sub-config.
type DatabaseConfig struct {
	Connection string `json:"connection"` // named connection/DSN alias
	Query      string `json:"query"`      // parameterized with positional `?`
}

// DataLakeCRUDConfig is the `data_lake_crud` strategy's sub-config.
type DataLakeCRUDConfig struct {
	DataLake   string     `json:"data_lake"`
	SchemaName string     `json:"schema_name"`
	Operation  DataLakeOp `json:"operation"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
	// FilterTemplate is rendered (as a `template` strategy would be) to
	// produce the JSON filter object for read_filter.
	FilterTemplate string `json:"filter_template,omitempty"`
}

// MockConfig is the discriminated record described in spec §3. Exactly
// one of the variant-specific fields is meaningful per Strategy; others
// SHOULD be absent (not enforced beyond Validate's best-effort check).
type MockConfig struct {
	Strategy Strategy `json:"strategy"`

	StaticResponse any `json:"static_response,omitempty"`

	Template string `json:"template,omitempty"`

	FakerType string `json:"faker_type,omitempty"`

	Stateful *StatefulConfig `json:"stateful,omitempty"`

	Script     string `json:"script,omitempty"`
	ScriptLang string `json:"script_lang,omitempty"` // only "js" is required; others optional

	File *FileConfig `json:"file,omitempty"`

	Pattern string `json:"pattern,omitempty"`

	LLM *LLMConfig `json:"llm,omitempty"`

	Database *DatabaseConfig `json:"database,omitempty"`

	DataLakeCRUD *DataLakeCRUDConfig `json:"data_lake_crud,omitempty"`

	// OutputSchema, when present, is a JSON Schema the generated value is
	// checked against; violations fail with MockOutputInvalid.
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}
