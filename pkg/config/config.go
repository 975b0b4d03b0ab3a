// Package config loads the declarative pipeline configuration from
// YAML, validates it, and resolves database credentials from
// environment variables only. Grounded on the table in ; the
// YAML/validate split mirrors jordigilh-kubernaut's own config loading
// (gopkg.in/yaml.v3 + github.com/go-playground/validator/v10).
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/entityresolve/er/pkg/ererr"
)

// Global holds the top-level collection names ( "global").
type Global struct {
	CollectionName string `yaml:"collection_name" validate:"required"`
 EdgeCollection string `yaml:"edge_collection" validate:"required"`
 ClusterCollection string `yaml:"cluster_collection" validate:"required"`
}

// BlockingStrategy is one entry in blocking.strategies.
type BlockingStrategy struct {
 Name string `yaml:"name" validate:"required,oneof=collect bm25 vector lsh geographic graph_traversal hybrid"`
 Fields []string `yaml:"fields,omitempty"`
 ComputedFields map[string]string `yaml:"computed_fields,omitempty"`
 Filters map[string]string `yaml:"filters,omitempty"`
 MaxBlockSize int `yaml:"max_block_size,omitempty"`
 MinBlockSize int `yaml:"min_block_size,omitempty"`
 BM25Threshold float64 `yaml:"bm25_threshold,omitempty"`
 LimitPerEntity int `yaml:"limit_per_entity,omitempty"`
 SearchView string `yaml:"search_view,omitempty"`
 MinSimilarity float64 `yaml:"min_similarity,omitempty"`
 TopK int `yaml:"top_k,omitempty"`
 NumTables int `yaml:"num_tables,omitempty"`
 NumHyperplanes int `yaml:"num_hyperplanes,omitempty"`
 Seed int64 `yaml:"seed,omitempty"`
}

// Blocking is the blocking.* section.
type Blocking struct {
 Strategies []BlockingStrategy `yaml:"strategies" validate:"required,min=1,dive"`
}

// Similarity is the similarity.* section.
type Similarity struct {
 Algorithm string `yaml:"algorithm" validate:"required,oneof=jaro_winkler levenshtein jaccard"`
 FieldWeights map[string]float64 `yaml:"field_weights" validate:"required,min=1"`
 Threshold float64 `yaml:"threshold"`
 BatchSize int `yaml:"batch_size,omitempty"`
 FieldsToFetch []string `yaml:"fields_to_fetch,omitempty"`
}

// Edges is the edges.* section.
type Edges struct {
 ForceUpdate bool `yaml:"force_update"`
 Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Clustering is the clustering.* section.
type Clustering struct {
 Algorithm string `yaml:"algorithm" validate:"required,oneof=graph_traversal bulk_dfs"`
 MinSimilarity float64 `yaml:"min_similarity"`
 MinClusterSize int `yaml:"min_cluster_size,omitempty"`
 MaxClusterSize int `yaml:"max_cluster_size,omitempty"`
 QualityScoreThreshold float64 `yaml:"quality_score_threshold,omitempty"`
}

// GoldenRecord is the golden_record.* section.
type GoldenRecord struct {
 FieldStrategies map[string]string `yaml:"field_strategies,omitempty"`
 Validators map[string]string `yaml:"validators,omitempty"`
}

// Enrichments is the enrichments.* section.
type Enrichments struct {
 TypeFilter bool `yaml:"type_filter"`
 Acronyms bool `yaml:"acronyms"`
 HierarchicalContext bool `yaml:"hierarchical_context"`
 ProvenanceSweep bool `yaml:"provenance_sweep"`
}

// Config is the full declarative pipeline configuration.
type Config struct {
 Global Global `yaml:"global" validate:"required"`
 Blocking Blocking `yaml:"blocking" validate:"required"`
 Similarity Similarity `yaml:"similarity" validate:"required"`
 Edges Edges `yaml:"edges"`
 Clustering Clustering `yaml:"clustering" validate:"required"`
 GoldenRecord GoldenRecord `yaml:"golden_record"`
 Enrichments Enrichments `yaml:"enrichments"`

 // AllowDevDefault opts in to running with no DB_PASSWORD set, for
 // local development only.
 AllowDevDefault bool `yaml:"allow_dev_default"`

 // Credentials is populated from environment variables by Load, never
 // unmarshalled from YAML.
 Credentials Credentials `yaml:"-"`
}

// Credentials holds the database connection parameters resolved from
// DB_HOST / DB_PORT / DB_USERNAME / DB_PASSWORD / DB_DATABASE. Never
// logged or marshalled with its password intact.
type Credentials struct {
 Host string
 Port string
 Username string
 Password string `json:"-"`
 Database string
}

// String redacts Password so Credentials is safe to log or print
//.
func (c Credentials) String() string {
 return fmt.Sprintf("Credentials{Host:%s Port:%s Username:%s Password:REDACTED Database:%s}",
 c.Host, c.Port, c.Username, c.Database)
}

var validate = validator.New()

// Load reads and validates a Config from a YAML file at path, then
// resolves Credentials from the environment. It aborts (returns an
// error) if DB_PASSWORD is unset unless the loaded config sets
// allow_dev_default: true.
func Load(path string) (*Config, error) {
 data, err := os.ReadFile(path)
 if err != nil {
 return nil, ererr.Validation("config.Load", err)
 }
 return Parse(data)
}

// Parse validates and resolves Credentials for a Config already read
// into memory (exported separately from Load so callers that assemble
// YAML in-process, e.g. tests, don't need a real file).
func Parse(data []byte) (*Config, error) {
 var cfg Config
 if err := yaml.Unmarshal(data, &cfg); err != nil {
 return nil, ererr.Validation("config.Parse", fmt.Errorf("invalid YAML: %w", err))
 }
 if err := validate.Struct(cfg); err != nil {
 return nil, ererr.Validation("config.Parse", err)
 }

 creds, err := credentialsFromEnv(cfg.AllowDevDefault)
 if err != nil {
 return nil, err
 }
 cfg.Credentials = creds
 return &cfg, nil
}

func credentialsFromEnv(allowDevDefault bool) (Credentials, error) {
 c := Credentials{
 Host: os.Getenv("DB_HOST"),
 Port: os.Getenv("DB_PORT"),
 Username: os.Getenv("DB_USERNAME"),
 Password: os.Getenv("DB_PASSWORD"),
 Database: os.Getenv("DB_DATABASE"),
 }
 if c.Password == "" && !allowDevDefault {
 return Credentials{}, ererr.Validation("config.credentialsFromEnv",
 fmt.Errorf("DB_PASSWORD is not set; set allow_dev_default: true to opt in to running without one"))
 }
 return c, nil
}
