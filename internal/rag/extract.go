package rag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"localrag/internal/storage"
)

// AnswerMode is the extraction strategy chosen for a question.
type AnswerMode string

const (
	ModeList    AnswerMode = "list"
	ModeCompare AnswerMode = "compare"
	ModeCompute AnswerMode = "compute"
	ModeFact    AnswerMode = "fact"
)

const (
	maxListItems    = 10
	snippetChunks   = 3
	snippetChars    = 240
	factWindowWidth = 2
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "what": {}, "with": {},
}

var (
	hyphenBreakRe = regexp.MustCompile(`(\w)-\n(\w)`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	bulletLineRe  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	sentenceEndRe = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)
)

// ClassifyQuestion picks the answer mode by keyword triggers. Unmatched
// questions fall through to fact mode.
func ClassifyQuestion(question string) AnswerMode {
	q := strings.ToLower(question)
	for _, w := range []string{"list", "show all", "enumerate"} {
		if strings.Contains(q, w) {
			return ModeList
		}
	}
	if strings.Contains(q, " vs ") || strings.Contains(q, "compare") || strings.Contains(q, "difference") {
		return ModeCompare
	}
	for _, w := range []string{"sum", "average", "mean"} {
		if strings.Contains(q, w) {
			return ModeCompute
		}
	}
	return ModeFact
}

// ExtractOptions configure how extractive answers are assembled.
type ExtractOptions struct {
	MaxChars        int
	JoinWith        string
	IncludeHeadings bool
	Dehyphenate     bool
}

// DefaultExtractOptions returns the answer assembly defaults.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		MaxChars:        1500,
		JoinWith:        "\n\n",
		IncludeHeadings: true,
		Dehyphenate:     true,
	}
}

// ExtractAnswer builds a deterministic answer from the final contexts
// without an LLM. The question is classified into a mode, each mode runs a
// fixed extraction strategy, and the result is capped at opts.MaxChars.
// When a mode strategy finds nothing, the budget concatenation variant
// supplies the answer instead. The second return value lists the chunks
// that contributed text, in input order.
func ExtractAnswer(question string, contexts []storage.ChunkRecord, opts ExtractOptions) (string, []storage.ChunkRecord) {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultExtractOptions().MaxChars
	}
	if opts.JoinWith == "" {
		opts.JoinWith = "\n\n"
	}

	var answer string
	var used []storage.ChunkRecord

	switch ClassifyQuestion(question) {
	case ModeList:
		answer, used = extractList(question, contexts)
	case ModeCompare, ModeCompute:
		answer, used = extractSnippets(contexts)
	default:
		answer, used = extractFact(question, contexts)
	}

	if answer == "" {
		return ConcatAnswer(contexts, opts)
	}
	if len(answer) > opts.MaxChars {
		answer = strings.TrimRight(answer[:opts.MaxChars], " \n")
	}
	return answer, used
}

// ConcatAnswer concatenates the contexts' text up to a character budget,
// stopping mid-chunk when the budget runs out. Heading paths become
// prefixes and line-broken hyphenated words are rejoined.
func ConcatAnswer(contexts []storage.ChunkRecord, opts ExtractOptions) (string, []storage.ChunkRecord) {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultExtractOptions().MaxChars
	}
	if opts.JoinWith == "" {
		opts.JoinWith = "\n\n"
	}

	var pieces []string
	var used []storage.ChunkRecord
	total := 0

	for _, ch := range contexts {
		txt := ch.Text
		if opts.Dehyphenate {
			txt = hyphenBreakRe.ReplaceAllString(txt, "$1$2")
		}
		if opts.IncludeHeadings && ch.HeadingPath != "" {
			txt = ch.HeadingPath + ":\n" + txt
		}
		txt = spaceRunRe.ReplaceAllString(txt, " ")
		txt = strings.TrimSpace(blankRunRe.ReplaceAllString(txt, "\n\n"))
		if txt == "" {
			continue
		}

		budget := opts.MaxChars - total
		if len(pieces) > 0 {
			budget -= len(opts.JoinWith)
		}
		if budget <= 0 {
			break
		}
		if len(txt) > budget {
			txt = strings.TrimRight(txt[:budget], " ")
		}

		pieces = append(pieces, txt)
		used = append(used, ch)
		total += len(txt)
		if len(pieces) > 1 {
			total += len(opts.JoinWith)
		}
		if total >= opts.MaxChars {
			break
		}
	}

	return strings.TrimSpace(strings.Join(pieces, opts.JoinWith)), used
}

// extractList pulls bullet-marked lines from the contexts, up to
// maxListItems unique items. When no bullets exist it falls back to a
// sentence window around query-term matches per chunk.
func extractList(question string, contexts []storage.ChunkRecord) (string, []storage.ChunkRecord) {
	seen := make(map[string]struct{})
	var items []string
	var used []storage.ChunkRecord

	for _, ch := range contexts {
		found := false
		for _, line := range strings.Split(ch.Text, "\n") {
			m := bulletLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			item := strings.TrimSpace(m[1])
			key := strings.ToLower(item)
			if _, dup := seen[key]; dup || item == "" {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, item)
			found = true
			if len(items) >= maxListItems {
				break
			}
		}
		if found {
			used = append(used, ch)
		}
		if len(items) >= maxListItems {
			break
		}
	}

	if len(items) == 0 {
		// No literal bullets anywhere; fall back to query-term sentence
		// windows so list questions over prose still get an answer.
		for _, ch := range contexts {
			window := sentenceWindow(question, ch.Text, factWindowWidth)
			if window == "" {
				continue
			}
			items = append(items, window)
			used = append(used, ch)
			if len(items) >= snippetChunks {
				break
			}
		}
		return strings.Join(items, "\n"), used
	}

	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), used
}

// extractSnippets concatenates short source-tagged snippets from the top
// chunks, for compare and compute questions.
func extractSnippets(contexts []storage.ChunkRecord) (string, []storage.ChunkRecord) {
	var parts []string
	var used []storage.ChunkRecord

	for _, ch := range contexts {
		txt := strings.TrimSpace(spaceRunRe.ReplaceAllString(ch.Text, " "))
		if txt == "" {
			continue
		}
		if len(txt) > snippetChars {
			txt = strings.TrimRight(txt[:snippetChars], " ") + "..."
		}
		tag := ch.FilePath
		if tag == "" {
			tag = ch.ID
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", tag, txt))
		used = append(used, ch)
		if len(parts) >= snippetChunks {
			break
		}
	}

	return strings.Join(parts, "\n\n"), used
}

// extractFact returns a sentence window centered on the first sentence
// containing a query token, or the first few sentences when no token
// matches.
func extractFact(question string, contexts []storage.ChunkRecord) (string, []storage.ChunkRecord) {
	for _, ch := range contexts {
		window := sentenceWindow(question, ch.Text, factWindowWidth)
		if window != "" {
			return window, []storage.ChunkRecord{ch}
		}
	}
	// No query token anywhere; lead with the first chunk's opening
	// sentences.
	for _, ch := range contexts {
		sentences := splitSentences(ch.Text)
		if len(sentences) == 0 {
			continue
		}
		end := factWindowWidth + 1
		if end > len(sentences) {
			end = len(sentences)
		}
		return strings.Join(sentences[:end], " "), []storage.ChunkRecord{ch}
	}
	return "", nil
}

// sentenceWindow finds the first sentence containing a query token and
// returns it with up to width sentences on each side.
func sentenceWindow(question, text string, width int) string {
	queryTokens := filterStopwords(tokenize(question))
	if len(queryTokens) == 0 {
		return ""
	}
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		querySet[tok] = struct{}{}
	}

	sentences := splitSentences(text)
	for i, s := range sentences {
		match := false
		for _, tok := range tokenize(s) {
			if _, ok := querySet[tok]; ok {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		lo := i - width
		if lo < 0 {
			lo = 0
		}
		hi := i + width + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		return strings.Join(sentences[lo:hi], " ")
	}
	return ""
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(spaceRunRe.ReplaceAllString(strings.ReplaceAll(text, "\n", " "), " "))
	if text == "" {
		return nil
	}

	var sentences []string
	rest := text
	for rest != "" {
		m := sentenceEndRe.FindStringSubmatch(rest)
		if m == nil {
			sentences = append(sentences, strings.TrimSpace(rest))
			break
		}
		s := strings.TrimSpace(m[1])
		if s != "" {
			sentences = append(sentences, s)
		}
		rest = rest[len(m[0]):]
	}
	return sentences
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
