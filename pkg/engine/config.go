package engine

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// engineConfig holds the configuration of an Engine.
// Configuration can be set via environment variables with the specified defaults.
type engineConfig struct {
	// Storage backend: "memory", "redis" or "leveldb".
	Storage string `env:"DENSESET_STORAGE" envDefault:"memory"`

	// Address of the Redis server, used by the redis backend and the event stream.
	RedisAddr string `env:"DENSESET_REDIS_ADDR" envDefault:"localhost:6379"`

	RedisPassword string `env:"DENSESET_REDIS_PASSWORD"`

	RedisDB int `env:"DENSESET_REDIS_DB" envDefault:"0"`

	// Directory of the leveldb database.
	LevelDBDir string `env:"DENSESET_LEVELDB_DIR" envDefault:"./data"`

	// Size of the in-process read cache in bytes. Zero disables the cache.
	CacheBytes int `env:"DENSESET_CACHE_BYTES" envDefault:"0"`

	// Redis stream that receives every committed observation. Empty disables publishing.
	EventStream string `env:"DENSESET_EVENT_STREAM"`
}

// loadEngineConfig loads the engine configuration from environment variables.
func loadEngineConfig() (engineConfig, error) {
	cfg := engineConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse engine config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate config")
	}

	return cfg, nil
}

// validate performs validation on the loaded configuration.
func (cfg *engineConfig) validate() error {
	if ParseStorageType(cfg.Storage) == StorageUndefined {
		return eris.Errorf("invalid storage: %s (must be 'memory', 'redis' or 'leveldb')", cfg.Storage)
	}
	if cfg.RedisDB < 0 {
		return eris.New("redis db cannot be negative")
	}
	if cfg.CacheBytes < 0 {
		return eris.New("cache size cannot be negative")
	}
	return nil
}

// applyToOptions applies the configuration values to the given Options.
func (cfg *engineConfig) applyToOptions(opt *Options) {
	opt.StorageType = ParseStorageType(cfg.Storage)
	opt.RedisAddr = cfg.RedisAddr
	opt.RedisPassword = cfg.RedisPassword
	opt.RedisDB = cfg.RedisDB
	opt.LevelDBDir = cfg.LevelDBDir
	opt.CacheBytes = cfg.CacheBytes
	opt.EventStream = cfg.EventStream
}

type Options struct {
	StorageType   StorageType
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LevelDBDir    string
	CacheBytes    int    // Read cache size, 0 disables it
	EventStream   string // Redis stream for observations, empty disables it

	// RedisClient replaces the client built from the Redis settings. The engine does not close it.
	RedisClient redis.UniversalClient
	Logger      *zerolog.Logger
	Tracer      trace.Tracer // Spans every commit when set
}

// newDefaultOptions creates Options with default values.
func newDefaultOptions() Options {
	return Options{
		StorageType: StorageUndefined,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.StorageType != StorageUndefined {
		opt.StorageType = newOpt.StorageType
	}
	if newOpt.RedisAddr != "" {
		opt.RedisAddr = newOpt.RedisAddr
	}
	if newOpt.RedisPassword != "" {
		opt.RedisPassword = newOpt.RedisPassword
	}
	if newOpt.RedisDB != 0 {
		opt.RedisDB = newOpt.RedisDB
	}
	if newOpt.LevelDBDir != "" {
		opt.LevelDBDir = newOpt.LevelDBDir
	}
	if newOpt.CacheBytes != 0 {
		opt.CacheBytes = newOpt.CacheBytes
	}
	if newOpt.EventStream != "" {
		opt.EventStream = newOpt.EventStream
	}
	if newOpt.RedisClient != nil {
		opt.RedisClient = newOpt.RedisClient
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
	if newOpt.Tracer != nil {
		opt.Tracer = newOpt.Tracer
	}
}

// validate checks that all required options are set and valid.
func (opt *Options) validate() error {
	if opt.StorageType == StorageUndefined {
		return eris.New("storage type must be specified")
	}
	if opt.StorageType == StorageLevelDB && opt.LevelDBDir == "" {
		return eris.New("leveldb directory cannot be empty")
	}
	needsRedis := opt.StorageType == StorageRedis || opt.EventStream != ""
	if needsRedis && opt.RedisClient == nil && opt.RedisAddr == "" {
		return eris.New("redis address cannot be empty")
	}
	if opt.CacheBytes < 0 {
		return eris.New("cache size cannot be negative")
	}
	return nil
}

// StorageType selects the backend sets are persisted to.
type StorageType uint8

const (
	StorageUndefined StorageType = iota // Used as the zero value
	StorageMemory                       // tm-db MemDB, lost on exit
	StorageRedis                        // Redis server
	StorageLevelDB                      // tm-db goleveldb on local disk
)

func (s StorageType) String() string {
	switch s {
	case StorageMemory:
		return "memory"
	case StorageRedis:
		return "redis"
	case StorageLevelDB:
		return "leveldb"
	default:
		return "undefined"
	}
}

// ParseStorageType converts a string to StorageType.
func ParseStorageType(s string) StorageType {
	switch strings.ToLower(s) {
	case "memory":
		return StorageMemory
	case "redis":
		return StorageRedis
	case "leveldb":
		return StorageLevelDB
	default:
		return StorageUndefined
	}
}
