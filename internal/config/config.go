// Package config loads the command line tool's settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pipeline"
	"github.com/dudu/facedetect/internal/resize"
)

// Environment keys
const (
	EnvBackend       = "FACEDETECT_BACKEND"
	EnvModel         = "FACEDETECT_MODEL"
	EnvRuntime       = "FACEDETECT_ORT_LIB"
	EnvWorkingMaxDim = "FACEDETECT_WORKING_MAX_DIM"
	EnvResampler     = "FACEDETECT_RESAMPLER"
	EnvMinConfidence = "FACEDETECT_MIN_CONFIDENCE"
	EnvInputSize     = "FACEDETECT_INPUT_SIZE"
	EnvConfThreshold = "FACEDETECT_CONF_THRESHOLD"
	EnvNMSThreshold  = "FACEDETECT_NMS_THRESHOLD"
	EnvLogLevel      = "FACEDETECT_LOG_LEVEL"
	EnvLogJSON       = "FACEDETECT_LOG_JSON"
	EnvCamera        = "FACEDETECT_CAMERA"
)

// DefaultBackend is the detector used when none is configured
const DefaultBackend = "cascade"

// Config holds everything needed to build a detector and a pipeline.
type Config struct {
	Backend        string  `validate:"required,backend"`
	ModelPath      string  `validate:"omitempty,file"`
	RuntimeLibrary string
	WorkingMaxDim  int     `validate:"gt=0,lte=4096"`
	Resampler      string  `validate:"resampler"`
	MinConfidence  float64 `validate:"gte=0"`
	InputSize      int     `validate:"gte=0"`
	ConfThreshold  float64 `validate:"gte=0,lte=1"`
	NMSThreshold   float64 `validate:"gte=0,lte=1"`
	LogLevel       string  `validate:"oneof=debug info warn error"`
	LogJSON        bool
	Camera         int     `validate:"gte=0"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Backend:       DefaultBackend,
		WorkingMaxDim: pipeline.DefaultWorkingMaxDim,
		Resampler:     resize.Linear,
		LogLevel:      "info",
	}
}

// Load reads the given .env files (or ./.env if present when none are
// given) into the environment and builds a Config from it. Variables already
// set in the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrap(err, "load .env")
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Wrapf(err, "load %v", files)
	}
	return FromEnv()
}

// FromEnv builds a Config from the defaults overridden by FACEDETECT_* variables.
func FromEnv() (Config, error) {
	cfg := Default()
	var err error

	lookupString(EnvBackend, &cfg.Backend)
	lookupString(EnvModel, &cfg.ModelPath)
	lookupString(EnvRuntime, &cfg.RuntimeLibrary)
	lookupString(EnvResampler, &cfg.Resampler)
	lookupString(EnvLogLevel, &cfg.LogLevel)
	if err = lookupInt(EnvWorkingMaxDim, &cfg.WorkingMaxDim); err != nil {
		return Config{}, err
	}
	if err = lookupInt(EnvInputSize, &cfg.InputSize); err != nil {
		return Config{}, err
	}
	if err = lookupInt(EnvCamera, &cfg.Camera); err != nil {
		return Config{}, err
	}
	if err = lookupFloat(EnvMinConfidence, &cfg.MinConfidence); err != nil {
		return Config{}, err
	}
	if err = lookupFloat(EnvConfThreshold, &cfg.ConfThreshold); err != nil {
		return Config{}, err
	}
	if err = lookupFloat(EnvNMSThreshold, &cfg.NMSThreshold); err != nil {
		return Config{}, err
	}
	if v, ok := os.LookupEnv(EnvLogJSON); ok && v != "" {
		if cfg.LogJSON, err = strconv.ParseBool(v); err != nil {
			return Config{}, errors.Wrapf(err, "%s=%q", EnvLogJSON, v)
		}
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize lowercases the case-insensitive names so they match the
// validation tags.
func (c *Config) Normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.Resampler = strings.ToLower(c.Resampler)
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "%s=%q", key, v)
	}
	*dst = n
	return nil
}

func lookupFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.Wrapf(err, "%s=%q", key, v)
	}
	*dst = f
	return nil
}

// NewValidator returns a validator that also knows the backend and
// resampler tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("backend", func(fl validator.FieldLevel) bool {
		return slices.Contains(detector.Names(), fl.Field().String())
	})
	_ = v.RegisterValidation("resampler", func(fl validator.FieldLevel) bool {
		return slices.Contains(resize.Names(), fl.Field().String())
	})
	return v
}

// Validate checks the config against the compiled-in backends and resamplers.
func (c Config) Validate() error {
	if err := NewValidator().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// Pipeline returns the pipeline settings
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		WorkingMaxDim: c.WorkingMaxDim,
		Resampler:     c.Resampler,
		MinConfidence: c.MinConfidence,
	}
}

// Detector returns the backend options
func (c Config) Detector(logger *zap.Logger) detector.Options {
	return detector.Options{
		ModelPath:      c.ModelPath,
		RuntimeLibrary: c.RuntimeLibrary,
		InputSize:      c.InputSize,
		ConfThreshold:  c.ConfThreshold,
		NMSThreshold:   c.NMSThreshold,
		Logger:         logger,
	}
}
