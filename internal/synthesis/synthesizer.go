package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"localrag/internal/llm"
	"localrag/internal/rag"
	"localrag/internal/storage"
)

const systemPrompt = "You are a careful analyst. Use ONLY the provided CONTEXT to answer. " +
	"If the answer is not fully supported by the CONTEXT, you MUST abstain. " +
	"Return STRICT JSON ONLY that matches the schema. " +
	"Every factual sentence in 'answer_markdown' must include at least one citation tag like [C1]. " +
	"Do not include any text outside JSON."

const responseSchema = `{
  "answer_markdown": string,
  "citations": [
    {"id": "C1", "title": string, "uri_or_path": string, "quote": string}
  ],
  "support_coverage": number,
  "abstain": boolean,
  "why": string
}`

// ChatClient is the LLM capability synthesis needs. llm.Client satisfies it.
type ChatClient interface {
	ChatJSON(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// Options configure grounded synthesis. A zero AbstainThreshold means the
// default; a negative value disables the blended-score gate entirely, so
// only a model-declared abstention or a citation violation abstains.
type Options struct {
	Model            string
	MaxTokens        int
	Temperature      float32
	CiteN            int
	AbstainThreshold float64
	StrictCitations  bool
	Pack             PackOptions
}

// DefaultOptions returns the synthesis defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokens:        1024,
		Temperature:      0,
		CiteN:            3,
		AbstainThreshold: 0.70,
		StrictCitations:  false,
		Pack:             DefaultPackOptions(),
	}
}

// Citation is one cited source in a synthesis result.
type Citation struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Source      string `json:"uri_or_path"`
	Quote       string `json:"quote,omitempty"`
	HeadingPath string `json:"heading_path,omitempty"`
	PageNo      *int   `json:"page_no,omitempty"`
}

// Result is the outcome of one synthesis call: either an answer with its
// citations, or an abstention with the reason and the top context snippets.
type Result struct {
	Abstain        bool         `json:"abstain"`
	Why            string       `json:"why,omitempty"`
	AnswerMarkdown string       `json:"answer_markdown,omitempty"`
	Citations      []Citation   `json:"citations,omitempty"`
	Snippets       []PackedItem `json:"snippets,omitempty"`
}

// Synthesizer produces grounded answers through an LLM backend.
type Synthesizer struct {
	client ChatClient
	opts   Options
}

// NewSynthesizer creates a synthesizer with the given backend and options.
func NewSynthesizer(client ChatClient, opts Options) *Synthesizer {
	def := DefaultOptions()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.CiteN <= 0 {
		opts.CiteN = def.CiteN
	}
	if opts.AbstainThreshold == 0 {
		opts.AbstainThreshold = def.AbstainThreshold
	} else if opts.AbstainThreshold < 0 {
		opts.AbstainThreshold = 0
	}
	if opts.Pack == (PackOptions{}) {
		opts.Pack = def.Pack
	}
	return &Synthesizer{client: client, opts: opts}
}

// SynthesizeAnswer packs the retrieved chunks, calls the LLM, validates the
// citations and applies the abstention gate. Backend or parse failures are
// hard errors; every other negative outcome is an abstention.
func (s *Synthesizer) SynthesizeAnswer(ctx context.Context, question string, retrieved []storage.ChunkRecord, avgSimilarity float64) (Result, error) {
	packed := Pack(retrieved, s.opts.Pack)
	if len(packed) == 0 {
		return Result{Abstain: true, Why: "no usable context provided", Snippets: []PackedItem{}}, nil
	}

	messages, err := buildMessages(question, packed)
	if err != nil {
		return Result{}, err
	}

	raw, err := s.client.ChatJSON(ctx, messages, llm.ChatParams{
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("synthesis backend call failed: %w", err)
	}

	parsed, err := parseModelJSON(raw)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse model output: %w", err)
	}

	if ok, reason := ValidateCitations(parsed, s.opts.StrictCitations); !ok {
		return Result{
			Abstain:  true,
			Why:      "citation validation failed: " + reason,
			Snippets: topSnippets(packed),
		}, nil
	}

	parsed.Citations = TrimCitations(parsed.Citations, s.opts.CiteN)

	if abstain, why := DecideAbstain(parsed, avgSimilarity, s.opts.AbstainThreshold); abstain {
		if why == "" {
			why = parsed.Why
		}
		return Result{Abstain: true, Why: why, Snippets: topSnippets(packed)}, nil
	}

	return Result{
		Abstain:        false,
		AnswerMarkdown: parsed.AnswerMarkdown,
		Citations:      enrichCitations(parsed.Citations, packed, retrieved),
	}, nil
}

// Synthesize adapts SynthesizeAnswer to the retrieval pipeline's interface.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, contexts []storage.ChunkRecord, avgSimilarity float64) (rag.SynthesisOutcome, error) {
	result, err := s.SynthesizeAnswer(ctx, question, contexts, avgSimilarity)
	if err != nil {
		return rag.SynthesisOutcome{}, err
	}

	outcome := rag.SynthesisOutcome{
		Abstained: result.Abstain,
		Reason:    result.Why,
		Answer:    result.AnswerMarkdown,
	}
	for _, c := range result.Citations {
		outcome.Citations = append(outcome.Citations, rag.Citation{
			File:        c.Source,
			HeadingPath: c.HeadingPath,
			PageNo:      c.PageNo,
			Quote:       c.Quote,
		})
	}
	return outcome, nil
}

func buildMessages(question string, packed []PackedItem) ([]llm.Message, error) {
	contextJSON, err := json.Marshal(map[string]any{"chunks": packed})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}

	user := fmt.Sprintf("QUESTION:\n%s\n\nCONTEXT (each item MUST be cited if used):\n%s\n\nRESPONSE JSON SCHEMA:\n%s",
		question, contextJSON, responseSchema)

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}, nil
}

func topSnippets(packed []PackedItem) []PackedItem {
	if len(packed) > 3 {
		return packed[:3]
	}
	return packed
}

// enrichCitations resolves each model citation back to the chunk behind its
// reference ID so heading and page metadata survive into the response.
func enrichCitations(citations []modelCitation, packed []PackedItem, retrieved []storage.ChunkRecord) []Citation {
	chunkByPackedID := make(map[string]storage.ChunkRecord, len(packed))
	for _, item := range packed {
		for _, ch := range retrieved {
			if ch.FilePath == item.Source && strings.TrimSpace(ch.Text) == item.Text {
				chunkByPackedID[item.ID] = ch
				break
			}
		}
	}

	out := make([]Citation, 0, len(citations))
	for _, c := range citations {
		enriched := Citation{
			ID:     c.ID,
			Title:  c.Title,
			Source: c.URIOrPath,
			Quote:  c.Quote,
		}
		if ch, ok := chunkByPackedID[c.ID]; ok {
			enriched.Source = ch.FilePath
			enriched.HeadingPath = ch.HeadingPath
			enriched.PageNo = ch.PageNo
		}
		out = append(out, enriched)
	}
	return out
}
