package config

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"fileshare/internal/validate"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:8080"
	DefaultDataDirName = ".fileshare"
	DefaultLogLevel    = "debug"

	DefaultMultipartMaxMemory int64 = 1 << 20
	DefaultRejectMismatch           = true
	DefaultBlobBackend              = "local"
	DefaultBlobDigest               = "sha256"
	DefaultGCBatchSize              = 500

	configFileName = ".fileshare.toml"
	dbFileName     = "fileshare.db"
	blobDirName    = "blobs"

	configDirEnvKey          = "FILESHARE_CONFIG_DIR"
	trustProjectConfigEnvKey = "FILESHARE_TRUST_PROJECT_CONFIG"

	apiURLEnvKey          = "FILESHARE_API_URL"
	dataDirEnvKey         = "FILESHARE_DATA_DIR"
	logLevelEnvKey        = "FILESHARE_LOG_LEVEL"
	allowedTypesEnvKey    = "FILESHARE_ALLOWED_MEDIA_TYPES"
	rejectMismatchEnvKey  = "FILESHARE_REJECT_MEDIA_TYPE_MISMATCH"
	maxFileBytesEnvKey    = "FILESHARE_MAX_FILE_BYTES"
	maxStorageBytesEnvKey = "FILESHARE_MAX_STORAGE_BYTES"
	s3AccessKeyEnvKey     = "FILESHARE_S3_ACCESS_KEY"
	s3SecretKeyEnvKey     = "FILESHARE_S3_SECRET_KEY"
)

// UploadConfig defines limits and the media-type policy for uploads.
type UploadConfig struct {
	MaxFileBytes            int64    `toml:"max_file_bytes" validate:"gt=0,lte=1099511627776"`
	MaxStorageBytes         int64    `toml:"max_storage_bytes" validate:"omitempty,gtefield=MaxFileBytes"`
	MultipartMaxMemory      int64    `toml:"multipart_max_memory" validate:"gt=0"`
	AllowedMediaTypes       []string `toml:"allowed_media_types" validate:"min=1,dive,required"`
	RejectMediaTypeMismatch bool     `toml:"reject_media_type_mismatch"`
}

// S3Config holds connection settings for the s3 blob backend.
type S3Config struct {
	Endpoint  string `toml:"endpoint" validate:"required,hostname_port"`
	Bucket    string `toml:"bucket" validate:"required"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Region    string `toml:"region"`
}

// BlobConfig selects and tunes the blob backend.
type BlobConfig struct {
	Backend     string   `toml:"backend" validate:"oneof=local s3"`
	Digest      string   `toml:"digest" validate:"oneof=sha256 blake2b"`
	Compress    bool     `toml:"compress"`
	GCBatchSize int      `toml:"gc_batch_size" validate:"gt=0"`
	S3          S3Config `toml:"s3" validate:"-"`
}

// Config defines runtime configuration for fileshare.
type Config struct {
	APIURL                   string       `toml:"api_url" validate:"required,url"`
	DataDir                  string       `toml:"data_dir" validate:"required"`
	LogLevel                 string       `toml:"log_level"`
	Uploads                  UploadConfig `toml:"uploads"`
	Blobs                    BlobConfig   `toml:"blobs"`
	TrustedProjectConfigPath string       `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DataDir:  "",
		LogLevel: DefaultLogLevel,
		Uploads: UploadConfig{
			MaxFileBytes:            validate.DefaultMaxFileBytes,
			MaxStorageBytes:         validate.DefaultMaxStorageBytes,
			MultipartMaxMemory:      DefaultMultipartMaxMemory,
			AllowedMediaTypes:       append([]string(nil), validate.DefaultAllowedMediaTypes...),
			RejectMediaTypeMismatch: DefaultRejectMismatch,
		},
		Blobs: BlobConfig{
			Backend:     DefaultBlobBackend,
			Digest:      DefaultBlobDigest,
			GCBatchSize: DefaultGCBatchSize,
		},
	}
}

// DBPath returns the metadata database location inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, dbFileName)
}

// BlobDir returns the local blob root inside the data dir.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, blobDirName)
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return validationError(err)
	}
	if c.Blobs.Backend == "s3" {
		if err := v.Struct(c.Blobs.S3); err != nil {
			return validationError(err)
		}
	}
	return nil
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	failed := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		tag := fieldErr.Tag()
		if fieldErr.Param() != "" {
			tag += "=" + fieldErr.Param()
		}
		failed = append(failed, fmt.Sprintf("%s: %s", fieldErr.Namespace(), tag))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(failed, ", "))
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"data_dir",
	"log_level",
	"uploads.max_file_bytes",
	"uploads.max_storage_bytes",
	"uploads.multipart_max_memory",
	"uploads.allowed_media_types",
	"uploads.reject_media_type_mismatch",
	"blobs.backend",
	"blobs.digest",
	"blobs.compress",
	"blobs.gc_batch_size",
	"blobs.s3.endpoint",
	"blobs.s3.bucket",
	"blobs.s3.prefix",
	"blobs.s3.access_key",
	"blobs.s3.secret_key",
	"blobs.s3.use_ssl",
	"blobs.s3.region",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "data_dir":
		return c.DataDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "uploads.max_file_bytes":
		return strconv.FormatInt(c.Uploads.MaxFileBytes, 10), nil
	case "uploads.max_storage_bytes":
		return strconv.FormatInt(c.Uploads.MaxStorageBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "uploads.reject_media_type_mismatch":
		return strconv.FormatBool(c.Uploads.RejectMediaTypeMismatch), nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.digest":
		return c.Blobs.Digest, nil
	case "blobs.compress":
		return strconv.FormatBool(c.Blobs.Compress), nil
	case "blobs.gc_batch_size":
		return strconv.Itoa(c.Blobs.GCBatchSize), nil
	case "blobs.s3.endpoint":
		return c.Blobs.S3.Endpoint, nil
	case "blobs.s3.bucket":
		return c.Blobs.S3.Bucket, nil
	case "blobs.s3.prefix":
		return c.Blobs.S3.Prefix, nil
	case "blobs.s3.access_key":
		return c.Blobs.S3.AccessKey, nil
	case "blobs.s3.secret_key":
		if c.Blobs.S3.SecretKey == "" {
			return "", nil
		}
		return "********", nil
	case "blobs.s3.use_ssl":
		return strconv.FormatBool(c.Blobs.S3.UseSSL), nil
	case "blobs.s3.region":
		return c.Blobs.S3.Region, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
// A .env file in the working directory is read first; it never replaces
// variables that are already set.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DataDir = filepath.Join(cwd, DefaultDataDirName)
		}
	}

	cfg.normalize()

	return &cfg, nil
}

func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil || info.IsDir() {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		c.APIURL = apiURL
	}
	if dataDir := os.Getenv(dataDirEnvKey); dataDir != "" {
		c.DataDir = dataDir
	}
	if level := strings.TrimSpace(os.Getenv(logLevelEnvKey)); level != "" {
		c.LogLevel = level
	}
	if raw := strings.TrimSpace(os.Getenv(allowedTypesEnvKey)); raw != "" {
		c.Uploads.AllowedMediaTypes = splitCSV(raw)
	}
	if raw := strings.TrimSpace(os.Getenv(rejectMismatchEnvKey)); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			c.Uploads.RejectMediaTypeMismatch = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv(maxFileBytesEnvKey)); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("%s must be a positive integer", maxFileBytesEnvKey)
		}
		c.Uploads.MaxFileBytes = parsed
	}
	if raw := strings.TrimSpace(os.Getenv(maxStorageBytesEnvKey)); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return fmt.Errorf("%s must be a non-negative integer", maxStorageBytesEnvKey)
		}
		c.Uploads.MaxStorageBytes = parsed
	}
	if key := os.Getenv(s3AccessKeyEnvKey); key != "" {
		c.Blobs.S3.AccessKey = key
	}
	if secret := os.Getenv(s3SecretKeyEnvKey); secret != "" {
		c.Blobs.S3.SecretKey = secret
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_file_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.max_storage_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer (0 disables the quota)", key)
		}
		return parsed, nil
	case "blobs.gc_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.reject_media_type_mismatch", "blobs.compress", "blobs.s3.use_ssl":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "uploads.allowed_media_types":
		return splitCSV(value), nil
	case "blobs.backend":
		value = strings.ToLower(value)
		if value != "local" && value != "s3" {
			return nil, fmt.Errorf("%s must be local or s3", key)
		}
		return value, nil
	case "blobs.digest":
		value = strings.ToLower(value)
		if value != "sha256" && value != "blake2b" {
			return nil, fmt.Errorf("%s must be sha256 or blake2b", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Blobs.GCBatchSize <= 0 {
		c.Blobs.GCBatchSize = DefaultGCBatchSize
	}
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = DefaultBlobBackend
	}
	c.Blobs.Digest = strings.ToLower(strings.TrimSpace(c.Blobs.Digest))
	if c.Blobs.Digest == "" {
		c.Blobs.Digest = DefaultBlobDigest
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
