package inference

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// ModelInfo is what model-info prints about an ONNX file
type ModelInfo struct {
	Inputs      []TensorInfo
	Outputs     []TensorInfo
	Producer    string
	Version     int64
	Domain      string
	Description string
}

// Inspect reads input/output shapes and metadata from an ONNX model.
// Initialize must have been called.
func Inspect(modelPath string) (*ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get model info for %s", modelPath)
	}

	info := &ModelInfo{
		Inputs:  convertInfo(inputs),
		Outputs: convertInfo(outputs),
	}

	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		// metadata is optional in ONNX files
		return info, nil
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		info.Producer = producer
	}
	if version, err := metadata.GetVersion(); err == nil {
		info.Version = version
	}
	if domain, err := metadata.GetDomain(); err == nil {
		info.Domain = domain
	}
	if desc, err := metadata.GetDescription(); err == nil {
		info.Description = desc
	}
	return info, nil
}

func convertInfo(in []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, 0, len(in))
	for _, i := range in {
		out = append(out, TensorInfo{
			Name:       i.Name,
			Dimensions: []int64(i.Dimensions),
			DataType:   fmt.Sprintf("%v", i.DataType),
		})
	}
	return out
}
