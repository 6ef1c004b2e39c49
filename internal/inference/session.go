// Package inference wraps the ONNX Runtime environment and sessions used by
// model-backed detectors.
package inference

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// DefaultLibraryPath is used when Initialize is given an empty path.
const DefaultLibraryPath = "lib/libonnxruntime.so"

var (
	initialized bool
	users       int
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment. Calls are counted so
// every detector can pair its own Initialize with a Shutdown.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		users++
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "failed to initialize ONNX Runtime from %s", libraryPath)
	}

	initialized = true
	users = 1
	return nil
}

// Shutdown releases one Initialize; the environment is destroyed with the last one.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	users--
	if users > 0 {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a session for an ONNX model. On macOS the CoreML
// execution provider is tried first and CPU is used if it is unavailable.
func NewSession(modelPath string, inputNames, outputNames []string, logger *zap.Logger) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, errors.New("ONNX Runtime not initialized, call Initialize() first")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	provider := "cpu"
	if runtime.GOOS == "darwin" {
		// Flag 0 = default settings, use Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warn("CoreML unavailable, using CPU", zap.String("model", modelPath), zap.Error(err))
		} else {
			provider = "coreml"
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for %s", modelPath)
	}
	logger.Info("model loaded", zap.String("model", modelPath), zap.String("provider", provider))

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// ModelPath returns the path the session was loaded from
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}
