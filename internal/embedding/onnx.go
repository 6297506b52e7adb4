//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxModelID = "all-MiniLM-L6-v2"
	onnxSeqLen  = 128

	tokCLS = 101
	tokSEP = 102
	tokUNK = 100
)

type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	// LibraryPath points at libonnxruntime; empty uses ONNXRUNTIME_LIB.
	LibraryPath string
	Dimensions  int
}

type onnxModel struct {
	session *ort.DynamicAdvancedSession
	vocab   map[string]int
	dims    int
}

// NewONNXLoader returns a Loader for a sentence-transformer exported to
// ONNX with a HuggingFace tokenizer.json next to it.
func NewONNXLoader(cfg ONNXConfig) Loader {
	return func() (Model, error) {
		if cfg.ModelPath == "" {
			return nil, ErrModelUnavailable
		}
		if cfg.Dimensions <= 0 {
			cfg.Dimensions = DefaultDimensions
		}
		lib := cfg.LibraryPath
		if lib == "" {
			lib = os.Getenv("ONNXRUNTIME_LIB")
		}
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				return nil, fmt.Errorf("init onnx runtime: %w", err)
			}
		}

		vocab, err := loadVocab(cfg.TokenizerPath)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}

		session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
			[]string{"input_ids", "attention_mask", "token_type_ids"},
			[]string{"last_hidden_state"},
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("open onnx session: %w", err)
		}
		return &onnxModel{session: session, vocab: vocab, dims: cfg.Dimensions}, nil
	}
}

func (m *onnxModel) Dimensions() int { return m.dims }
func (m *onnxModel) ID() string      { return onnxModelID }

func (m *onnxModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, onnxSeqLen)
	mask := make([]int64, onnxSeqLen)
	types := make([]int64, onnxSeqLen)

	toks := m.tokenize(text)
	if len(toks) > onnxSeqLen-2 {
		toks = toks[:onnxSeqLen-2]
	}
	ids[0], mask[0] = tokCLS, 1
	for i, t := range toks {
		ids[i+1], mask[i+1] = t, 1
	}
	ids[len(toks)+1], mask[len(toks)+1] = tokSEP, 1

	shape := ort.NewShape(1, onnxSeqLen)
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("unexpected output tensor type")
	}
	return meanPool(out.GetData(), out.GetShape(), mask, m.dims)
}

// meanPool averages token states over attended positions. Outputs that
// are already pooled ([1, dims]) pass through.
func meanPool(data []float32, shape ort.Shape, mask []int64, dims int) ([]float32, error) {
	vec := make([]float32, dims)
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output dimension %d, want %d", len(data), dims)
		}
		copy(vec, data[:dims])
	case 3:
		seq, hidden := int(shape[1]), int(shape[2])
		if hidden != dims {
			return nil, fmt.Errorf("hidden size %d, want %d", hidden, dims)
		}
		var n float32
		for i := 0; i < seq && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			n++
			row := data[i*hidden : (i+1)*hidden]
			for j, x := range row {
				vec[j] += x
			}
		}
		if n > 0 {
			for j := range vec {
				vec[j] /= n
			}
		}
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	return Normalize(vec), nil
}

func loadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tk struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tk); err != nil {
		return nil, err
	}
	if len(tk.Model.Vocab) == 0 {
		return nil, errors.New("tokenizer has empty vocab")
	}
	return tk.Model.Vocab, nil
}

// tokenize is a lowercase WordPiece pass over whitespace-split words.
func (m *onnxModel) tokenize(text string) []int64 {
	var out []int64
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]")
		if w == "" {
			continue
		}
		if id, ok := m.vocab[w]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, m.wordPiece(w)...)
	}
	return out
}

func (m *onnxModel) wordPiece(w string) []int64 {
	var out []int64
	for start := 0; start < len(w); {
		end := len(w)
		matched := false
		for ; end > start; end-- {
			sub := w[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := m.vocab[sub]; ok {
				out = append(out, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokUNK)
			end = start + 1
		}
		start = end
	}
	return out
}
