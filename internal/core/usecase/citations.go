package usecase

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

type CitationConfig struct {
	MinOverlap      float64
	MaxPerClaim     int
	OverlapWeight   float64
	RelevanceWeight float64
}

func DefaultCitationConfig() CitationConfig {
	return CitationConfig{
		MinOverlap:      0.2,
		MaxPerClaim:     3,
		OverlapWeight:   0.85,
		RelevanceWeight: 0.15,
	}
}

func (c CitationConfig) normalize() CitationConfig {
	def := DefaultCitationConfig()
	if c.MinOverlap <= 0 || c.MinOverlap > 1 {
		c.MinOverlap = def.MinOverlap
	}
	if c.MaxPerClaim <= 0 {
		c.MaxPerClaim = def.MaxPerClaim
	}
	if c.OverlapWeight <= 0 && c.RelevanceWeight <= 0 {
		c.OverlapWeight = def.OverlapWeight
		c.RelevanceWeight = def.RelevanceWeight
	}
	total := c.OverlapWeight + c.RelevanceWeight
	c.OverlapWeight /= total
	c.RelevanceWeight /= total
	return c
}

// CitationAssembler links answer sentences to the chunks of an evidence bundle.
type CitationAssembler struct {
	cfg CitationConfig
}

func NewCitationAssembler(cfg CitationConfig) *CitationAssembler {
	return &CitationAssembler{cfg: cfg.normalize()}
}

type citableChunk struct {
	id     string
	tokens map[string]struct{}
	fused  float64
}

// AttachCitations returns one citation per sentence of answerText. Only chunk
// IDs present in bundle are ever cited.
func (a *CitationAssembler) AttachCitations(answerText string, bundle *domain.EvidenceBundle) []domain.Citation {
	spans := splitSentences(answerText)
	citations := make([]domain.Citation, 0, len(spans))
	if len(spans) == 0 {
		return citations
	}

	chunks := citableChunks(bundle)
	for _, span := range spans {
		claim := answerText[span.start:span.end]
		claimTokens := toTokenSet(claim)
		if len(claimTokens) == 0 {
			continue
		}
		citations = append(citations, a.cite(claim, span, claimTokens, chunks))
	}
	return citations
}

func (a *CitationAssembler) cite(claim string, span textSpan, claimTokens map[string]struct{}, chunks []citableChunk) domain.Citation {
	type scored struct {
		id      string
		support float64
	}
	matches := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		overlap := tokenContainment(claimTokens, chunk.tokens)
		if overlap < a.cfg.MinOverlap {
			continue
		}
		support := a.cfg.OverlapWeight*overlap + a.cfg.RelevanceWeight*clamp01(chunk.fused)
		matches = append(matches, scored{id: chunk.id, support: support})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].support != matches[j].support {
			return matches[i].support > matches[j].support
		}
		return matches[i].id < matches[j].id
	})
	if len(matches) > a.cfg.MaxPerClaim {
		matches = matches[:a.cfg.MaxPerClaim]
	}

	citation := domain.Citation{
		Claim:    claim,
		Start:    span.start,
		End:      span.end,
		ChunkIDs: make([]string, 0, len(matches)),
	}
	for _, match := range matches {
		citation.ChunkIDs = append(citation.ChunkIDs, match.id)
	}
	if len(matches) > 0 {
		citation.Support = matches[0].support
	}
	return citation
}

// citableChunks flattens primary and merged chunks. A merged chunk inherits
// the fused score of the candidate that absorbed it.
func citableChunks(bundle *domain.EvidenceBundle) []citableChunk {
	if bundle == nil {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]citableChunk, 0, len(bundle.Candidates))
	for _, candidate := range bundle.Candidates {
		for _, chunk := range candidate.Chunks() {
			if chunk.ChunkID == "" {
				continue
			}
			if _, ok := seen[chunk.ChunkID]; ok {
				continue
			}
			seen[chunk.ChunkID] = struct{}{}
			out = append(out, citableChunk{
				id:     chunk.ChunkID,
				tokens: toTokenSet(chunk.Text),
				fused:  candidate.FusedScore,
			})
		}
	}
	return out
}

type textSpan struct {
	start int
	end   int
}

var abbreviations = toSet("art", "arts", "no", "nos", "sec", "secs", "para", "paras", "e.g", "i.e", "mr", "mrs", "ms", "dr", "cf", "vs", "etc", "ch", "cl", "subs", "p", "pp")

// splitSentences returns byte ranges of the sentences in text, trimmed of
// surrounding whitespace. Line breaks also end a sentence so list items are
// cited individually.
func splitSentences(text string) []textSpan {
	spans := make([]textSpan, 0, 8)
	start := 0
	flush := func(end int) {
		if s, e, ok := trimSpan(text, start, end); ok {
			spans = append(spans, textSpan{start: s, end: e})
		}
		start = end
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == '\n':
			flush(i)
		case r == '!' || r == '?' || r == '.':
			end := i + size
			for end < len(text) && strings.IndexByte("\"')]", text[end]) >= 0 {
				end++
			}
			atBoundary := end >= len(text) || unicode.IsSpace(rune(text[end]))
			if atBoundary && (r != '.' || !isAbbreviation(text[start:i])) {
				flush(end)
				i = end
				continue
			}
		}
		i += size
	}
	flush(len(text))
	return spans
}

func isAbbreviation(before string) bool {
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return false
	}
	word := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], "(\"'"))
	if len(fields) == 1 && isNumber(word) {
		// list marker such as "1."
		return true
	}
	if r, size := utf8.DecodeRuneInString(word); size == len(word) && unicode.IsLetter(r) {
		return true
	}
	_, ok := abbreviations[word]
	return ok
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func trimSpan(text string, start, end int) (int, int, bool) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end, end > start
}
