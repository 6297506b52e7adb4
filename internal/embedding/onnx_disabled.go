//go:build !onnx

package embedding

type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	Dimensions    int
}

// NewONNXLoader always fails in builds without the onnx tag, which sends
// the Generator to its hash fallback.
func NewONNXLoader(ONNXConfig) Loader {
	return func() (Model, error) { return nil, ErrModelUnavailable }
}
