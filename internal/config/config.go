// Package config handles detector configuration.
// Values come from an optional YAML file (CONFIG_FILE) overridden by env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	LogLevel string `yaml:"log_level"`

	SampleRate           int      `yaml:"sample_rate"`
	FramesPerBuffer      int      `yaml:"frames_per_buffer"`
	BufferSeconds        float64  `yaml:"buffer_seconds"`
	AudioDevice          string   `yaml:"audio_device"` // name substring; empty picks the best microphone
	ExcludedAudioDevices []string `yaml:"excluded_audio_devices"`

	DetectionInterval    time.Duration `yaml:"detection_interval"`
	CooldownSeconds      float64       `yaml:"cooldown_seconds"`
	ConfidenceThreshold  float64       `yaml:"confidence_threshold"`
	MatchThreshold       float64       `yaml:"match_threshold"` // normalized DTW distance
	SilenceWindowSeconds float64       `yaml:"silence_window_seconds"`
	SilenceLevel         float64       `yaml:"silence_level"`
	MinRMS               float64       `yaml:"min_rms"`
	NoiseGateThreshold   float64       `yaml:"noise_gate_threshold"`
	NoiseGateRatio       float64       `yaml:"noise_gate_ratio"`

	DataDir    string `yaml:"data_dir"`    // badger directory; empty keeps history in memory
	PatternDir string `yaml:"pattern_dir"` // watched WAV folder; empty disables
	ClipDir    string `yaml:"clip_dir"`    // local clip archive; empty disables

	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`

	// Credentials only come from the environment.
	S3AccessKeyID     string `yaml:"-"`
	S3SecretAccessKey string `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:             ":8000",
		GRPCAddr:             ":50052",
		LogLevel:             "info",
		SampleRate:           44100,
		FramesPerBuffer:      1024,
		BufferSeconds:        10,
		ExcludedAudioDevices: []string{"iphone", "teams"},
		DetectionInterval:    100 * time.Millisecond,
		CooldownSeconds:      5,
		ConfidenceThreshold:  0.6,
		MatchThreshold:       2.0,
		SilenceWindowSeconds: 3,
		SilenceLevel:         0.01,
		MinRMS:               0.01,
		NoiseGateThreshold:   0.005,
		NoiseGateRatio:       4,
		S3Region:             "us-east-1",
	}
}

// Load builds the configuration from CONFIG_FILE (if set) and env vars.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigMissing, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.SampleRate = getEnvInt("SAMPLE_RATE", c.SampleRate)
	c.FramesPerBuffer = getEnvInt("FRAMES_PER_BUFFER", c.FramesPerBuffer)
	c.BufferSeconds = getEnvFloat("BUFFER_SECONDS", c.BufferSeconds)
	c.AudioDevice = getEnv("AUDIO_DEVICE", c.AudioDevice)
	c.ExcludedAudioDevices = getEnvList("EXCLUDED_AUDIO_DEVICES", c.ExcludedAudioDevices)
	c.DetectionInterval = getEnvDuration("DETECTION_INTERVAL", c.DetectionInterval)
	c.CooldownSeconds = getEnvFloat("COOLDOWN_SECONDS", c.CooldownSeconds)
	c.ConfidenceThreshold = getEnvFloat("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.MatchThreshold = getEnvFloat("MATCH_THRESHOLD", c.MatchThreshold)
	c.SilenceWindowSeconds = getEnvFloat("SILENCE_WINDOW_SECONDS", c.SilenceWindowSeconds)
	c.SilenceLevel = getEnvFloat("SILENCE_LEVEL", c.SilenceLevel)
	c.MinRMS = getEnvFloat("MIN_RMS", c.MinRMS)
	c.NoiseGateThreshold = getEnvFloat("NOISE_GATE_THRESHOLD", c.NoiseGateThreshold)
	c.NoiseGateRatio = getEnvFloat("NOISE_GATE_RATIO", c.NoiseGateRatio)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.PatternDir = getEnv("PATTERN_DIR", c.PatternDir)
	c.ClipDir = getEnv("CLIP_DIR", c.ClipDir)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3Prefix = getEnv("S3_PREFIX", c.S3Prefix)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3PathStyle = getEnvBool("S3_PATH_STYLE", c.S3PathStyle)
	c.S3AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.S3AccessKeyID)
	c.S3SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", c.S3SecretAccessKey)
}

// Validate rejects settings the detector cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.SampleRate <= 0 {
		problems = append(problems, "sample_rate must be positive")
	}
	if c.FramesPerBuffer <= 0 {
		problems = append(problems, "frames_per_buffer must be positive")
	}
	if c.BufferSeconds < c.SilenceWindowSeconds {
		problems = append(problems, "buffer_seconds must cover silence_window_seconds")
	}
	if c.DetectionInterval <= 0 {
		problems = append(problems, "detection_interval must be positive")
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		problems = append(problems, "confidence_threshold must be in (0, 1]")
	}
	if c.MatchThreshold <= 0 {
		problems = append(problems, "match_threshold must be positive")
	}
	if c.NoiseGateRatio < 1 {
		problems = append(problems, "noise_gate_ratio must be >= 1")
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Cooldown returns the post-detection suppression window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

func (c *Config) String() string {
	return fmt.Sprintf("http=%s grpc=%s rate=%d buffer=%.1fs interval=%s", c.HTTPAddr, c.GRPCAddr, c.SampleRate, c.BufferSeconds, c.DetectionInterval)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
