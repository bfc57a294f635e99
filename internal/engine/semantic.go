package engine

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// embeddingDim is the fixed length of the lexical feature vector. The
// representation is deterministic and cheap: character distribution, word
// statistics and shallow semantic cues, L2-normalized. It is a stand-in
// for a model-backed embedder behind the same Embedder interface; only
// the severity banding contract depends on absolute magnitudes.
const embeddingDim = 96

// Embedder turns text into a unit vector comparable by the similarity
// methods below.
type Embedder interface {
	Encode(text string) []float64
}

// Similarity method names accepted by the comparator.
const (
	MethodCosine    = "cosine"
	MethodEuclidean = "euclidean"
	MethodManhattan = "manhattan"
)

var whitespaceRe = regexp.MustCompile(`\s+`)
var strippedRe = regexp.MustCompile(`[^\w\s.,!?;:]`)

// LexicalEmbedder is the default Embedder: no model weights, no I/O.
type LexicalEmbedder struct{}

func NewLexicalEmbedder() *LexicalEmbedder {
	return &LexicalEmbedder{}
}

// Encode produces the normalized feature vector for text. Empty or
// whitespace-only input encodes to the zero vector.
func (e *LexicalEmbedder) Encode(text string) []float64 {
	raw := text
	text = preprocess(text)
	vec := make([]float64, 0, embeddingDim)

	vec = append(vec, characterFeatures(text, raw)...)
	vec = append(vec, wordFeatures(text)...)
	vec = append(vec, semanticFeatures(text)...)

	if len(vec) > embeddingDim {
		vec = vec[:embeddingDim]
	}
	for len(vec) < embeddingDim {
		vec = append(vec, 0)
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func preprocess(text string) string {
	text = strings.ToLower(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strippedRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// characterFeatures works on the preprocessed text except for the
// uppercase ratio, which only the raw input still carries.
func characterFeatures(text, raw string) []float64 {
	features := make([]float64, 0, 29)
	total := float64(len(text))

	var counts [26]int
	for _, c := range text {
		if c >= 'a' && c <= 'z' {
			counts[c-'a']++
		}
	}
	for i := 0; i < 26; i++ {
		features = append(features, float64(counts[i])/math.Max(total, 1))
	}

	upper := 0
	for _, c := range raw {
		if c >= 'A' && c <= 'Z' {
			upper++
		}
	}

	words := strings.Fields(text)
	features = append(features, total/1000.0)
	features = append(features, float64(len(words))/math.Max(total, 1))
	features = append(features, float64(upper)/math.Max(float64(len(raw)), 1))
	return features
}

var commonWords = []string{"the", "and", "or", "but", "in", "on", "at", "to", "for", "of"}

func wordFeatures(text string) []float64 {
	features := make([]float64, 0, 13)
	words := strings.Fields(text)

	if len(words) > 0 {
		lengths := make([]float64, len(words))
		seen := make(map[string]struct{}, len(words))
		for i, w := range words {
			lengths[i] = float64(len(w))
			seen[w] = struct{}{}
		}
		features = append(features, Mean(lengths)/10.0)
		features = append(features, StdDev(lengths)/10.0)
		features = append(features, float64(len(seen))/float64(len(words)))
	} else {
		features = append(features, 0, 0, 0)
	}

	for _, cw := range commonWords {
		count := 0
		for _, w := range words {
			if w == cw {
				count++
			}
		}
		features = append(features, float64(count)/math.Max(float64(len(words)), 1))
	}
	return features
}

var (
	positiveWords = []string{"good", "great", "excellent", "amazing", "wonderful", "fantastic"}
	negativeWords = []string{"bad", "terrible", "awful", "horrible", "disappointing", "poor"}
	techWords     = []string{"algorithm", "data", "model", "system", "code", "software"}
	businessWords = []string{"revenue", "profit", "customer", "market", "strategy", "business"}
)

func semanticFeatures(text string) []float64 {
	features := make([]float64, 0, 7)
	total := math.Max(float64(len(text)), 1)
	wordCount := math.Max(float64(len(strings.Fields(text))), 1)

	sentences := strings.Count(text, ".") + 1
	features = append(features, float64(sentences)/total)
	features = append(features, float64(strings.Count(text, "?"))/total)
	features = append(features, float64(strings.Count(text, "!"))/total)

	countAny := func(terms []string) float64 {
		n := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				n++
			}
		}
		return float64(n) / wordCount
	}
	features = append(features, countAny(positiveWords))
	features = append(features, countAny(negativeWords))
	features = append(features, countAny(techWords))
	features = append(features, countAny(businessWords))
	return features
}

// Comparator scores semantic similarity between two texts.
type Comparator struct {
	embedder Embedder
}

func NewComparator(embedder Embedder) *Comparator {
	if embedder == nil {
		embedder = NewLexicalEmbedder()
	}
	return &Comparator{embedder: embedder}
}

// Compare returns a SimilarityResult in [0,1] (1 = identical). Empty or
// whitespace-only text on either side yields a defined zero-similarity
// result rather than an error. Unknown methods fail the operation.
func (c *Comparator) Compare(a, b, method string, includeAnalysis bool) (*SimilarityResult, error) {
	if method == "" {
		method = MethodCosine
	}
	switch method {
	case MethodCosine, MethodEuclidean, MethodManhattan:
	default:
		return nil, fmt.Errorf("%w: unknown similarity method %q", ErrConfig, method)
	}

	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		res := &SimilarityResult{
			Score:    0,
			Method:   method,
			Distance: 1,
			Category: similarityCategory(0),
		}
		return res, nil
	}

	embA := c.embedder.Encode(a)
	embB := c.embedder.Encode(b)
	score := VectorSimilarity(embA, embB, method)

	res := &SimilarityResult{
		Score:    score,
		Method:   method,
		Distance: 1 - score,
		Category: similarityCategory(score),
	}
	if includeAnalysis {
		res.Analysis = analyzeShift(a, b, score)
	}
	return res, nil
}

// VectorSimilarity computes the named similarity over two equal-length
// vectors. All three methods are symmetric; cosine over unit vectors is
// the dot product, clamped to [0,1].
func VectorSimilarity(a, b []float64, method string) float64 {
	switch method {
	case MethodEuclidean:
		sum := 0.0
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return 1.0 / (1.0 + math.Sqrt(sum))
	case MethodManhattan:
		sum := 0.0
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return 1.0 / (1.0 + sum)
	default: // cosine
		dot := 0.0
		for i := range a {
			dot += a[i] * b[i]
		}
		return clamp01(dot)
	}
}

func analyzeShift(a, b string, score float64) *SimilarityAnalysis {
	lengthRatio := float64(len(b)) / math.Max(float64(len(a)), 1)
	direction := "stable"
	if lengthRatio > 1.2 {
		direction = "expansion"
	} else if lengthRatio < 0.8 {
		direction = "contraction"
	}
	return &SimilarityAnalysis{
		WordOverlap:    wordOverlap(a, b),
		LengthRatio:    lengthRatio,
		ShiftMagnitude: math.Abs(1 - score),
		ShiftDirection: direction,
	}
}

// wordOverlap is the Jaccard similarity of the two word sets.
func wordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func similarityCategory(score float64) string {
	switch {
	case score >= 0.9:
		return "very_high"
	case score >= 0.7:
		return "high"
	case score >= 0.5:
		return "medium"
	case score >= 0.3:
		return "low"
	default:
		return "very_low"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
