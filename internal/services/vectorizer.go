package services

import (
	"crypto/sha256"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

// FeatureVector is a fixed-schema numeric vector tagged with the vocabulary
// version it was built against. Vectors from different schema versions are
// never compared; stale vectors are recomputed instead.
type FeatureVector struct {
	Schema string    `json:"schema"`
	Values []float64 `json:"values"`
}

// FeatureVectorizer maps Resource and preference records to fixed-length
// vectors under a shared vocabulary. It is immutable once built: new terms or
// tags in the corpus require building a new vectorizer, which carries a new
// schema version.
type FeatureVectorizer struct {
	cfg    *config.FeatureConfig
	logger *logrus.Logger

	version string

	terms     []string
	termIndex map[string]int
	idf       []float64

	tagVocab []string
	tagIndex map[string]int

	numericMean [3]float64
	numericStd  [3]float64

	textOffset    int
	tagOffset     int
	catOffset     int
	numericOffset int
	dim           int
}

var (
	tokenSplitRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	stopWords = buildStopWords()
)

func buildStopWords() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "will", "with", "this", "but", "they", "have",
		"had", "what", "said", "each", "which", "she", "do", "how", "their",
		"if", "up", "out", "many", "then", "them", "these", "so", "some",
		"you", "your", "learn", "learning",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// BuildVectorizer scans the full corpus once and derives the text
// vocabulary, tag vocabulary and numeric statistics that define the feature
// schema. The result is deterministic for a given corpus.
func BuildVectorizer(corpus []models.Resource, cfg *config.FeatureConfig, logger *logrus.Logger) *FeatureVectorizer {
	v := &FeatureVectorizer{
		cfg:       cfg,
		logger:    logger,
		termIndex: make(map[string]int),
		tagIndex:  make(map[string]int),
	}

	docFreq := make(map[string]int)
	tagSet := make(map[string]bool)
	var durations, ratings, counts []float64

	for i := range corpus {
		r := &corpus[i]

		seen := make(map[string]bool)
		for _, tok := range tokenize(resourceText(r)) {
			if !seen[tok] {
				seen[tok] = true
				docFreq[tok]++
			}
		}

		for _, t := range r.Tags {
			tagSet[normalizeTag(t)] = true
		}
		for _, p := range r.Prerequisites {
			tagSet[normalizeTag(p)] = true
		}

		durations = append(durations, float64(r.DurationMinutes))
		ratings = append(ratings, r.Rating)
		counts = append(counts, float64(r.RatingCount))
	}

	v.terms = selectTerms(docFreq, cfg.MaxTextFeatures)
	v.idf = make([]float64, len(v.terms))
	n := float64(len(corpus))
	for i, term := range v.terms {
		v.termIndex[term] = i
		v.idf[i] = math.Log((n+1)/float64(docFreq[term]+1)) + 1
	}

	for tag := range tagSet {
		if tag != "" {
			v.tagVocab = append(v.tagVocab, tag)
		}
	}
	sort.Strings(v.tagVocab)
	for i, tag := range v.tagVocab {
		v.tagIndex[tag] = i
	}

	v.numericMean[0], v.numericStd[0] = meanStd(durations)
	v.numericMean[1], v.numericStd[1] = meanStd(ratings)
	v.numericMean[2], v.numericStd[2] = meanStd(counts)

	v.textOffset = 0
	v.tagOffset = len(v.terms)
	v.catOffset = v.tagOffset + len(v.tagVocab)
	v.numericOffset = v.catOffset + categoricalDim()
	v.dim = v.numericOffset + 3

	v.version = v.computeVersion()

	logger.WithFields(logrus.Fields{
		"schema":     v.version,
		"dimensions": v.dim,
		"terms":      len(v.terms),
		"tags":       len(v.tagVocab),
		"corpus":     len(corpus),
	}).Info("Feature vectorizer built")

	return v
}

// Version identifies the vocabulary schema; vectors carry it so stale ones
// can be detected and recomputed.
func (v *FeatureVectorizer) Version() string { return v.version }

// Dimensions is the fixed length of every vector under this schema.
func (v *FeatureVectorizer) Dimensions() int { return v.dim }

// VectorizeResource maps one resource to its feature vector. Unseen terms
// and tags contribute nothing; unknown categories land in the explicit
// "unknown" slot. The same input always yields the same vector.
func (v *FeatureVectorizer) VectorizeResource(r *models.Resource) FeatureVector {
	values := make([]float64, v.dim)

	tokens := tokenize(resourceText(r))
	if len(tokens) > 0 {
		for _, tok := range tokens {
			if idx, ok := v.termIndex[tok]; ok {
				values[v.textOffset+idx] += 1.0 / float64(len(tokens))
			}
		}
		for i := range v.terms {
			values[v.textOffset+i] *= v.idf[i]
		}
	}

	for _, t := range r.Tags {
		if idx, ok := v.tagIndex[normalizeTag(t)]; ok {
			values[v.tagOffset+idx] = 1
		}
	}
	for _, p := range r.Prerequisites {
		if idx, ok := v.tagIndex[normalizeTag(p)]; ok {
			values[v.tagOffset+idx] = 1
		}
	}

	catOff := v.catOffset
	catOff = setOneHot(values, catOff, models.Difficulties, r.Difficulty)
	catOff = setOneHot(values, catOff, models.MediaTypes, r.MediaType)
	setOneHot(values, catOff, models.LearningStyles, r.LearningStyle)

	values[v.numericOffset] = zScore(float64(r.DurationMinutes), v.numericMean[0], v.numericStd[0])
	values[v.numericOffset+1] = zScore(r.Rating, v.numericMean[1], v.numericStd[1])
	values[v.numericOffset+2] = zScore(float64(r.RatingCount), v.numericMean[2], v.numericStd[2])

	v.applyBlockWeights(values)

	return FeatureVector{Schema: v.version, Values: values}
}

// VectorizePreferences maps stated preferences into the same schema as
// resources: preferred tags fill tag slots, preferred difficulty/style/media
// fill their one-hot slots, and the text and numeric blocks stay zero.
func (v *FeatureVectorizer) VectorizePreferences(prefs *models.UserPreferences) FeatureVector {
	values := make([]float64, v.dim)

	for _, t := range prefs.PreferredTags {
		if idx, ok := v.tagIndex[normalizeTag(t)]; ok {
			values[v.tagOffset+idx] = 1
		}
	}

	catOff := v.catOffset
	if prefs.PreferredDifficulty != "" {
		setOneHot(values, catOff, models.Difficulties, prefs.PreferredDifficulty)
	}
	catOff += len(models.Difficulties) + 1
	for _, mt := range prefs.PreferredMediaTypes {
		setOneHot(values, catOff, models.MediaTypes, mt)
	}
	catOff += len(models.MediaTypes) + 1
	if prefs.PreferredStyle != "" {
		setOneHot(values, catOff, models.LearningStyles, prefs.PreferredStyle)
	}

	v.applyBlockWeights(values)

	return FeatureVector{Schema: v.version, Values: values}
}

// applyBlockWeights L2-normalizes each feature block independently, then
// scales it by its configured weight so no block dominates by raw length.
func (v *FeatureVectorizer) applyBlockWeights(values []float64) {
	normalizeBlock(values[v.textOffset:v.tagOffset], v.cfg.TextWeight)
	normalizeBlock(values[v.tagOffset:v.catOffset], v.cfg.TagWeight)
	normalizeBlock(values[v.catOffset:v.numericOffset], v.cfg.CategoricalWeight)
	normalizeBlock(values[v.numericOffset:], v.cfg.NumericWeight)
}

func (v *FeatureVectorizer) computeVersion() string {
	h := sha256.New()
	for _, t := range v.terms {
		fmt.Fprintln(h, t)
	}
	for _, t := range v.tagVocab {
		fmt.Fprintln(h, t)
	}
	fmt.Fprintln(h, models.Difficulties, models.MediaTypes, models.LearningStyles)
	fmt.Fprintf(h, "%v %v\n", v.numericMean, v.numericStd)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// Helpers

func resourceText(r *models.Resource) string {
	return r.Title + " " + r.Description + " " + strings.Join(r.Tags, " ")
}

func tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	parts := tokenSplitRegex.Split(text, -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 3 && !stopWords[p] {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(tag)))
}

// selectTerms keeps the max most frequent terms, ties broken
// lexicographically so the vocabulary is deterministic.
func selectTerms(docFreq map[string]int, max int) []string {
	terms := make([]string, 0, len(docFreq))
	for t := range docFreq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if docFreq[terms[i]] != docFreq[terms[j]] {
			return docFreq[terms[i]] > docFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if max > 0 && len(terms) > max {
		terms = terms[:max]
	}
	sort.Strings(terms)
	return terms
}

func categoricalDim() int {
	// One extra "unknown" slot per category list.
	return len(models.Difficulties) + 1 + len(models.MediaTypes) + 1 + len(models.LearningStyles) + 1
}

// setOneHot marks the slot for value within the list starting at offset,
// using the trailing slot for unknown or missing values. Returns the offset
// of the next block.
func setOneHot(values []float64, offset int, list []string, value string) int {
	idx := len(list) // unknown slot
	needle := strings.ToLower(strings.TrimSpace(value))
	for i, item := range list {
		if item == needle {
			idx = i
			break
		}
	}
	values[offset+idx] = 1
	return offset + len(list) + 1
}

func normalizeBlock(block []float64, weight float64) {
	n := floats.Norm(block, 2)
	if n == 0 {
		return
	}
	floats.Scale(weight/n, block)
}

func zScore(x, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (x - mean) / std
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
