package embedding

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/cpuspec"
	"github.com/soundprint/soundprint/internal/errors"
)

// TFLiteEmbedder runs a CLAP-style audio embedding model through the
// TensorFlow Lite C API. The interpreter is not thread safe, a mutex
// serializes Invoke calls.
type TFLiteEmbedder struct {
	interpreter *tflite.Interpreter
	modelName   string
	dim         int
	mu          sync.Mutex
}

// NewTFLiteEmbedder loads the model file from settings and prepares an
// interpreter. The model's output dimensionality must match the
// configured embedding dim, vectors of the wrong size would poison the
// vector collection.
func NewTFLiteEmbedder(settings *conf.Settings) (*TFLiteEmbedder, error) {
	start := time.Now()

	modelPath := settings.Embedding.ModelPath
	if modelPath == "" {
		return nil, errors.Newf("embedding model path not configured").
			Component("embedding").
			Category(errors.CategoryModelInit).
			Build()
	}

	modelData, err := os.ReadFile(modelPath) //nolint:gosec // G304: path comes from application settings
	if err != nil {
		return nil, errors.New(err).
			Component("embedding").
			Category(errors.CategoryFileIO).
			FileContext(modelPath, -1).
			Timing("model-file-read", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Component("embedding").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := determineThreadCount(settings.Embedding.Threads)

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, userData any) {
		embedLogger.Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create TensorFlow Lite interpreter").
			Component("embedding").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Component("embedding").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Build()
	}

	// TFLite keeps its own copy of the model, reclaim the read buffer
	runtime.GC()

	dim := settings.Embedding.Dim
	if outputTensor := interpreter.GetOutputTensor(0); outputTensor != nil {
		modelDim := outputTensor.Dim(outputTensor.NumDims() - 1)
		if modelDim != dim {
			return nil, errors.Newf("embedding dimension mismatch: model produces %d, configured %d", modelDim, dim).
				Component("embedding").
				Category(errors.CategoryModelInit).
				Context("model_path", modelPath).
				Build()
		}
	}

	embedLogger.Info("embedding model initialized",
		"model", settings.Embedding.Model,
		"model_path", modelPath,
		"threads", threads,
		"dim", dim,
		"load_ms", time.Since(start).Milliseconds())

	return &TFLiteEmbedder{
		interpreter: interpreter,
		modelName:   settings.Embedding.Model,
		dim:         dim,
	}, nil
}

// determineThreadCount picks the interpreter thread count from settings
// and system capabilities. Zero means automatic.
func determineThreadCount(configuredThreads int) int {
	systemCPUCount := runtime.NumCPU()

	if configuredThreads == 0 {
		spec := cpuspec.GetCPUSpec()
		if optimal := spec.GetOptimalThreadCount(); optimal > 0 {
			return min(optimal, systemCPUCount)
		}
		return systemCPUCount
	}

	if configuredThreads > systemCPUCount {
		return systemCPUCount
	}
	return configuredThreads
}

// ModelName returns the configured model identifier.
func (e *TFLiteEmbedder) ModelName() string {
	return e.modelName
}

// Dim returns the embedding dimensionality.
func (e *TFLiteEmbedder) Dim() int {
	return e.dim
}

// Embed runs one inference. Samples shorter than the model input are
// zero-padded, longer input is truncated to the model's window.
func (e *TFLiteEmbedder) Embed(ctx context.Context, samples []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputTensor := e.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("embedding").
			Category(errors.CategoryModelInference).
			Build()
	}

	in := inputTensor.Float32s()
	n := copy(in, samples)
	for i := n; i < len(in); i++ {
		in[i] = 0
	}

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("embedding").
			Category(errors.CategoryModelInference).
			Build()
	}

	outputTensor := e.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return nil, errors.Newf("cannot get output tensor").
			Component("embedding").
			Category(errors.CategoryModelInference).
			Build()
	}

	return extractVector(outputTensor, e.dim)
}

// extractVector copies the embedding out of the output tensor. Models
// export [D], [1,D] or [1,T,D] shapes; in the frame-wise layout the
// first frame carries the pooled embedding, so the leading dim values
// are the vector in every case.
func extractVector(tensor *tflite.Tensor, dim int) ([]float32, error) {
	data := tensor.Float32s()
	if len(data) < dim {
		return nil, errors.Newf("output tensor holds %d values, need %d", len(data), dim).
			Component("embedding").
			Category(errors.CategoryModelInference).
			Build()
	}
	out := make([]float32, dim)
	copy(out, data[:dim])
	return out, nil
}
