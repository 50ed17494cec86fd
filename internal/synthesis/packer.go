// Package synthesis turns retrieved chunks into a grounded LLM answer with
// inline citations, abstaining when the evidence is too thin.
package synthesis

import (
	"fmt"
	"strings"
	"unicode"

	"localrag/internal/storage"
)

// PackedItem is one context unit sent to the language model. Reference IDs
// are C1, C2, ... in acceptance order and are never reused for different
// chunks within one request.
type PackedItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"uri_or_path"`
	Text   string `json:"text"`
}

// PackOptions bound the packed context.
type PackOptions struct {
	// MaxChars is the total character budget. The check only applies once
	// at least one item is accepted, so a single oversized item still
	// produces non-empty output.
	MaxChars int
	// PerSourceQuota caps accepted items per source so one document cannot
	// dominate the context window.
	PerSourceQuota int
	// NearDupJaccard is the token-set similarity at or above which a
	// candidate is dropped as a near-duplicate.
	NearDupJaccard float64
	// CompareWindow is how many recently accepted items each candidate is
	// compared against.
	CompareWindow int
}

// DefaultPackOptions returns the packing defaults.
func DefaultPackOptions() PackOptions {
	return PackOptions{
		MaxChars:       24000,
		PerSourceQuota: 3,
		NearDupJaccard: 0.90,
		CompareWindow:  3,
	}
}

// Pack filters and budgets chunks into prompt-ready items. Input order is
// preserved; it is assumed already final-ranked.
func Pack(chunks []storage.ChunkRecord, opts PackOptions) []PackedItem {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultPackOptions().MaxChars
	}
	if opts.PerSourceQuota <= 0 {
		opts.PerSourceQuota = DefaultPackOptions().PerSourceQuota
	}
	if opts.CompareWindow <= 0 {
		opts.CompareWindow = DefaultPackOptions().CompareWindow
	}

	var out []PackedItem
	var recentTokens []map[string]struct{}
	perSource := make(map[string]int)
	used := 0

	for i, ch := range chunks {
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			continue
		}

		source := sourceKey(ch, i)
		if perSource[source] >= opts.PerSourceQuota {
			continue
		}

		tokens := tokenSet(text)
		if opts.NearDupJaccard > 0 && isNearDuplicate(tokens, recentTokens, opts.NearDupJaccard) {
			continue
		}

		if len(out) > 0 && used+len(text) > opts.MaxChars {
			continue
		}

		out = append(out, PackedItem{
			ID:     fmt.Sprintf("C%d", len(out)+1),
			Title:  titleFor(ch, i),
			Source: ch.FilePath,
			Text:   text,
		})
		perSource[source]++
		used += len(text)

		recentTokens = append(recentTokens, tokens)
		if len(recentTokens) > opts.CompareWindow {
			recentTokens = recentTokens[1:]
		}
	}
	return out
}

// sourceKey identifies the owning source for quota purposes: file path
// first, then title, then a positional fallback.
func sourceKey(ch storage.ChunkRecord, i int) string {
	if ch.FilePath != "" {
		return ch.FilePath
	}
	if ch.Title != "" {
		return ch.Title
	}
	return fmt.Sprintf("source-%d", i)
}

func titleFor(ch storage.ChunkRecord, i int) string {
	if ch.Title != "" {
		return ch.Title
	}
	if ch.HeadingPath != "" {
		return ch.HeadingPath
	}
	if ch.FilePath != "" {
		return ch.FilePath
	}
	return fmt.Sprintf("Source %d", i+1)
}

func isNearDuplicate(tokens map[string]struct{}, recent []map[string]struct{}, threshold float64) bool {
	for _, prev := range recent {
		if jaccard(tokens, prev) >= threshold {
			return true
		}
	}
	return false
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	for _, tok := range strings.Fields(builder.String()) {
		set[tok] = struct{}{}
	}
	return set
}
