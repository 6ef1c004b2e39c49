// Package detector defines the contract every face-detection backend
// implements and a registry of the backends compiled into the binary.
package detector

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dudu/facedetect/internal/pixel"
)

// ErrUnknownBackend is returned by Open for names nobody registered.
var ErrUnknownBackend = errors.New("unknown detector backend")

// Detector is an opaque face detector.
//
// Detect receives a packed, unpadded buffer whose channels are in
// ChannelOrder and returns detections in the buffer's pixel coordinates.
// The buffer is only valid for the duration of the call.
type Detector interface {
	ChannelOrder() pixel.ChannelOrder
	Detect(buf *pixel.Buffer) ([]RawDetection, error)
	Close() error
}

// Scorer is implemented by backends that can tell whether their
// RawDetection.Confidence carries a score.
type Scorer interface {
	Scored() bool
}

// Scored reports whether det's confidences are meaningful. Backends that do
// not implement Scorer are assumed to score their detections.
func Scored(det Detector) bool {
	s, ok := det.(Scorer)
	return !ok || s.Scored()
}

// Options configures a backend. Fields a backend does not use are ignored.
type Options struct {
	ModelPath string
	// RuntimeLibrary is the ONNX Runtime shared library for model backends
	RuntimeLibrary string
	InputSize     int
	ConfThreshold float64
	NMSThreshold  float64
	Logger        *zap.Logger
}

// Factory builds a backend.
type Factory func(opts Options) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. It panics on duplicates,
// since registration happens in init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic("detector: backend registered twice: " + name)
	}
	registry[name] = factory
}

// Open builds the backend registered under name.
func Open(name string, opts Options) (Detector, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q (available: %v)", name, Names())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	det, err := factory(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s detector", name)
	}
	return det, nil
}

// Names returns the registered backend names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
