package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   client.GenerativeModel(modelName),
		timeout: 60 * time.Second,
	}, nil
}

// ScanDocument analyzes a document and extracts expense fields
func (g *Gemini) ScanDocument(ctx context.Context, data []byte, contentType string) (*DocumentData, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	document, err := documentPart(data, contentType)
	if err != nil {
		return nil, err
	}

	resp, err := g.model.GenerateContent(ctx, document, genai.Text(documentScanPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result, err := parseDocumentJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing document data: %w", err)
	}
	return result, nil
}

// documentPart sends PDFs as-is, Gemini reads every page. Images are
// normalized to PNG first.
func documentPart(data []byte, contentType string) (genai.Part, error) {
	if normalizeMimeType(contentType) == "application/pdf" {
		return genai.Blob{MIMEType: "application/pdf", Data: data}, nil
	}

	pngData, _, _, err := prepareImageData(data, contentType)
	if err != nil {
		return nil, err
	}
	// genai.ImageData expects the format suffix, not the full MIME type
	return genai.ImageData("png", pngData), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
