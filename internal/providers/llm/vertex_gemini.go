package llm

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	geminiTemperature  = 0.7
)

// ErrBlocked is returned when the generator withholds a reply on safety
// grounds. Callers treat it like any other generation failure.
var ErrBlocked = errors.New("llm: reply blocked by provider safety filter")

// VertexGemini streams companion replies from Gemini on Vertex AI.
type VertexGemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, project, location, model string) (*VertexGemini, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex: GCP_PROJECT is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("vertex client: %w", err)
	}

	gm := client.GenerativeModel(model)
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(companionSystemPrompt)}}
	gm.SetTemperature(geminiTemperature)
	gm.SetMaxOutputTokens(defaultMaxTokens)
	return &VertexGemini{client: client, model: gm}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		iter := v.model.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			var blocked *genai.BlockedError
			if errors.As(err, &blocked) {
				errs <- fmt.Errorf("%w: %v", ErrBlocked, blocked)
				return
			}
			if err != nil {
				errs <- err
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok && text != "" {
						out <- string(text)
					}
				}
			}
		}
	}()
	return out, errs
}
