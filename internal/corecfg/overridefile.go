package corecfg

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileOverrides is the shape of the optional YAML/JSON override file (spec
// §4.1 precedence tier 2), matching the teacher's config.go's use of
// gopkg.in/yaml.v3 for its own file format.
type FileOverrides struct {
	Cache struct {
		DefaultTTLSeconds   *int `yaml:"default_ttl_seconds"`
		MaxConnections      *int `yaml:"max_connections"`
		CompressionLevel    *int `yaml:"compression_level"`
		CompressionThreshold *int `yaml:"compression_threshold"`
		MemoryCacheSize     *int `yaml:"memory_cache_size"`
		EncryptionKey       *string `yaml:"encryption_key"`
	} `yaml:"cache"`
}

// LoadOverrideFile reads and parses a YAML override file. An empty path
// skips override-file loading and returns nil, nil; a path that cannot be
// read, including a missing file, is returned as an error.
func LoadOverrideFile(path string) (*FileOverrides, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f FileOverrides
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *FileOverrides) applyTo(cache *CacheConfig) {
	if f == nil {
		return
	}
	if f.Cache.DefaultTTLSeconds != nil {
		cache.DefaultTTL = time.Duration(*f.Cache.DefaultTTLSeconds) * time.Second
	}
	if f.Cache.MaxConnections != nil {
		cache.MaxConnections = *f.Cache.MaxConnections
	}
	if f.Cache.CompressionLevel != nil {
		cache.CompressionLevel = *f.Cache.CompressionLevel
	}
	if f.Cache.CompressionThreshold != nil {
		cache.CompressionThreshold = *f.Cache.CompressionThreshold
	}
	if f.Cache.MemoryCacheSize != nil {
		cache.MemoryCacheSize = *f.Cache.MemoryCacheSize
	}
	if f.Cache.EncryptionKey != nil {
		cache.EncryptionKey = *f.Cache.EncryptionKey
	}
}
