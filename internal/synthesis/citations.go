package synthesis

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	citationTagRe   = regexp.MustCompile(`\[C(\d+)\]`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)
)

// ValidateCitations checks that every [Cn] tag in the answer refers to an
// entry in the citations list. In strict mode every sentence of a non-empty
// answer must carry at least one tag.
func ValidateCitations(resp modelResponse, strict bool) (bool, string) {
	answer := strings.TrimSpace(resp.AnswerMarkdown)

	declared := make(map[string]struct{}, len(resp.Citations))
	for _, c := range resp.Citations {
		if c.ID != "" {
			declared[c.ID] = struct{}{}
		}
	}

	for _, m := range citationTagRe.FindAllStringSubmatch(answer, -1) {
		tag := "C" + m[1]
		if _, ok := declared[tag]; !ok {
			return false, "answer contains citation tags not present in citations array"
		}
	}

	if strict && answer != "" {
		for _, s := range splitIntoSentences(answer) {
			if !citationTagRe.MatchString(s) {
				return false, fmt.Sprintf("strict mode: sentence without a citation tag: %q", truncateSentence(s))
			}
		}
	}
	return true, ""
}

// DecideAbstain blends the model's self-reported support coverage with the
// retrieval similarity prior and abstains below the threshold. The model's
// own abstain flag is honored as well, so a confident-looking score never
// overrides an explicit model abstention.
func DecideAbstain(resp modelResponse, avgSimilarity, threshold float64) (bool, string) {
	sim := avgSimilarity
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	blended := 0.5*resp.SupportCoverage + 0.5*sim
	if blended < threshold {
		return true, fmt.Sprintf("insufficient support (blended=%.2f < threshold=%.2f)", blended, threshold)
	}
	if resp.Abstain {
		why := resp.Why
		if why == "" {
			why = "model abstained"
		}
		return true, why
	}
	return false, ""
}

// TrimCitations keeps the first n citations unique by ID, preserving order.
func TrimCitations(citations []modelCitation, n int) []modelCitation {
	if n <= 0 || len(citations) == 0 {
		return citations
	}
	seen := make(map[string]struct{}, n)
	trimmed := make([]modelCitation, 0, n)
	for _, c := range citations {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		trimmed = append(trimmed, c)
		if len(trimmed) >= n {
			break
		}
	}
	return trimmed
}

func splitIntoSentences(text string) []string {
	var sentences []string
	rest := text
	for {
		loc := sentenceSplitRe.FindStringIndex(rest)
		if loc == nil {
			if s := strings.TrimSpace(rest); s != "" {
				sentences = append(sentences, s)
			}
			return sentences
		}
		// Keep the terminal punctuation with its sentence.
		if s := strings.TrimSpace(rest[:loc[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		rest = rest[loc[1]:]
	}
}

func truncateSentence(s string) string {
	const max = 80
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
