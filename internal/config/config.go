package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Boundary   BoundaryConfig   `yaml:"boundary" mapstructure:"boundary"`
	Harvest    HarvestConfig    `yaml:"harvest" mapstructure:"harvest"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Categories CategoriesConfig `yaml:"categories" mapstructure:"categories"`
	Cluster    ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Density    DensityConfig    `yaml:"density" mapstructure:"density"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Publish    PublishConfig    `yaml:"publish" mapstructure:"publish"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// CatalogConfig configures the 2GIS Catalog API client.
type CatalogConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Fields      string `yaml:"fields" mapstructure:"fields"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BoundaryConfig points at the district polygon file (GeoJSON or Shapefile).
type BoundaryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// QuerySpec is one harvest query: free text or a rubric identifier.
type QuerySpec struct {
	Code     string `yaml:"code" mapstructure:"code"`
	Class    string `yaml:"class" mapstructure:"class"`
	Text     string `yaml:"text" mapstructure:"text"`
	RubricID string `yaml:"rubric_id" mapstructure:"rubric_id"`
}

// Label returns the text or rubric the query searches for.
func (q QuerySpec) Label() string {
	if q.Text != "" {
		return q.Text
	}
	return "rubric:" + q.RubricID
}

// HarvestConfig configures the page loop and its pacing.
type HarvestConfig struct {
	Mode             string      `yaml:"mode" mapstructure:"mode"`
	NX               int         `yaml:"nx" mapstructure:"nx"`
	NY               int         `yaml:"ny" mapstructure:"ny"`
	RegionID         string      `yaml:"region_id" mapstructure:"region_id"`
	PageSize         int         `yaml:"page_size" mapstructure:"page_size"`
	MaxPages         int         `yaml:"max_pages" mapstructure:"max_pages"`
	PageDelayMs      int         `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	TileDelayMs      int         `yaml:"tile_delay_ms" mapstructure:"tile_delay_ms"`
	QueryDelayMs     int         `yaml:"query_delay_ms" mapstructure:"query_delay_ms"`
	Retries          int         `yaml:"retries" mapstructure:"retries"`
	CircuitThreshold int         `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	FilePrefix       string      `yaml:"file_prefix" mapstructure:"file_prefix"`
	Queries          []QuerySpec `yaml:"queries" mapstructure:"queries"`
}

// StoreConfig configures the POI store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Flush       string `yaml:"flush" mapstructure:"flush"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DedupConfig selects the known-identifier index.
type DedupConfig struct {
	Index string      `yaml:"index" mapstructure:"index"`
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the Redis identifier index.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Key      string `yaml:"key" mapstructure:"key"`
}

// CategoriesConfig points at an optional mapping file overriding the embedded one.
type CategoriesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ClusterConfig holds the DBSCAN constants.
type ClusterConfig struct {
	Eps        float64 `yaml:"eps" mapstructure:"eps"`
	MinSamples int     `yaml:"min_samples" mapstructure:"min_samples"`
	TopN       int     `yaml:"top_n" mapstructure:"top_n"`
}

// DensityConfig configures KDE and accessibility maps.
type DensityConfig struct {
	GridSize      int      `yaml:"grid_size" mapstructure:"grid_size"`
	BandwidthM    float64  `yaml:"bandwidth_m" mapstructure:"bandwidth_m"`
	PadM          float64  `yaml:"pad_m" mapstructure:"pad_m"`
	MinPoints     int      `yaml:"min_points" mapstructure:"min_points"`
	Threshold     float64  `yaml:"threshold" mapstructure:"threshold"`
	StepM         float64  `yaml:"step_m" mapstructure:"step_m"`
	KDECategories []string `yaml:"kde_categories" mapstructure:"kde_categories"`
	Accessibility []string `yaml:"accessibility" mapstructure:"accessibility"`
}

// OutputConfig configures where rendered files go.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// MetricsConfig configures the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// PublishConfig configures the S3-compatible bucket for rendered outputs.
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envFiles are loaded before the environment is read. Existing variables win.
var envFiles = []string{"data/.env", ".env"}

// legacyEnv maps config keys to the variable names older deployments used.
var legacyEnv = map[string]string{
	"catalog.key":   "DGIS_KEY",
	"boundary.path": "POLYGON_PATH",
	"harvest.nx":    "NX",
	"harvest.ny":    "NY",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, eris.Wrapf(err, "config: load %s", f)
		}
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "POI_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("catalog.base_url", "https://catalog.api.2gis.com")
	v.SetDefault("catalog.fields", "items.point,items.address,items.rubrics")
	v.SetDefault("catalog.timeout_secs", 30)
	v.SetDefault("boundary.path", "data/kirovsky.geojson")
	v.SetDefault("harvest.mode", "tiled")
	v.SetDefault("harvest.nx", 3)
	v.SetDefault("harvest.ny", 3)
	v.SetDefault("harvest.region_id", "38")
	v.SetDefault("harvest.page_size", 10)
	v.SetDefault("harvest.max_pages", 5)
	v.SetDefault("harvest.page_delay_ms", 300)
	v.SetDefault("harvest.tile_delay_ms", 200)
	v.SetDefault("harvest.query_delay_ms", 1000)
	v.SetDefault("harvest.retries", 0)
	v.SetDefault("harvest.circuit_threshold", 5)
	v.SetDefault("harvest.file_prefix", "kirovsky")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/poi.db")
	v.SetDefault("store.flush", "per_query")
	v.SetDefault("dedup.index", "memory")
	v.SetDefault("dedup.redis.addr", "localhost:6379")
	v.SetDefault("dedup.redis.key", "poi:known_ids")
	v.SetDefault("cluster.eps", 0.2)
	v.SetDefault("cluster.min_samples", 5)
	v.SetDefault("cluster.top_n", 3)
	v.SetDefault("density.grid_size", 70)
	v.SetDefault("density.bandwidth_m", 300.0)
	v.SetDefault("density.pad_m", 400.0)
	v.SetDefault("density.min_points", 5)
	v.SetDefault("density.threshold", 0.05)
	v.SetDefault("density.step_m", 250.0)
	v.SetDefault("density.kde_categories", []string{
		"food_drink", "retail_food", "education", "healthcare", "auto_mobility", "green_spaces", "finance",
	})
	v.SetDefault("density.accessibility", []string{"education", "healthcare"})
	v.SetDefault("output.dir", "output")
	v.SetDefault("publish.prefix", "district-poi")
	v.SetDefault("publish.use_ssl", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command scope needs.
func (c *Config) Validate(scope string) error {
	var problems []string
	switch scope {
	case "harvest":
		if c.Catalog.Key == "" {
			problems = append(problems, "catalog.key is required (POI_CATALOG_KEY or DGIS_KEY)")
		}
		if c.Boundary.Path == "" {
			problems = append(problems, "boundary.path is required")
		}
		switch c.Harvest.Mode {
		case "tiled":
			if c.Harvest.NX < 1 || c.Harvest.NY < 1 {
				problems = append(problems, "harvest.nx and harvest.ny must be positive")
			}
		case "region":
			if c.Harvest.RegionID == "" {
				problems = append(problems, "harvest.region_id is required in region mode")
			}
		default:
			problems = append(problems, "harvest.mode must be tiled or region")
		}
		if c.Harvest.PageSize < 1 || c.Harvest.PageSize > 10 {
			problems = append(problems, "harvest.page_size must be 1..10")
		}
		if c.Harvest.MaxPages < 1 || c.Harvest.MaxPages > 5 {
			problems = append(problems, "harvest.max_pages must be 1..5")
		}
		if c.Harvest.Retries < 0 {
			problems = append(problems, "harvest.retries must not be negative")
		}
		if c.Store.Flush != "per_query" && c.Store.Flush != "end" {
			problems = append(problems, "store.flush must be per_query or end")
		}
		if c.Dedup.Index != "memory" && c.Dedup.Index != "redis" {
			problems = append(problems, "dedup.index must be memory or redis")
		}
	case "rubrics":
		if c.Catalog.Key == "" {
			problems = append(problems, "catalog.key is required (POI_CATALOG_KEY or DGIS_KEY)")
		}
	case "cluster":
		if c.Cluster.Eps <= 0 {
			problems = append(problems, "cluster.eps must be positive")
		}
		if c.Cluster.MinSamples < 1 {
			problems = append(problems, "cluster.min_samples must be at least 1")
		}
	case "render":
		if c.Density.GridSize < 2 {
			problems = append(problems, "density.grid_size must be at least 2")
		}
		if c.Density.BandwidthM <= 0 || c.Density.StepM <= 0 {
			problems = append(problems, "density.bandwidth_m and density.step_m must be positive")
		}
		if c.Output.Dir == "" {
			problems = append(problems, "output.dir is required")
		}
	case "publish":
		if c.Publish.Endpoint == "" || c.Publish.Bucket == "" {
			problems = append(problems, "publish.endpoint and publish.bucket are required")
		}
		if c.Publish.AccessKey == "" || c.Publish.SecretKey == "" {
			problems = append(problems, "publish.access_key and publish.secret_key are required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", scope)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", scope, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
