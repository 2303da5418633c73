package dataset

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/adalundhe/sentgraph/core/cache"
	"github.com/adalundhe/sentgraph/core/neural"
)

// Reserved vocabulary ids. The CLS id is reserved here precisely so it can
// never collide with an ordinary token, which CLS injection requires.
const (
	PadID = 0
	UnkID = 1
	ClsID = 2

	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
)

// WordEmbedder supplies pretrained vectors for vocabulary words. String
// must identify the embedder stably for cache keying.
type WordEmbedder interface {
	Dim() int
	Embed(words []string) (*neural.Matrix, error)
	String() string
}

// RandomEmbedder produces deterministic pseudo-random vectors: each word's
// vector depends only on the word and the seed, not on call order. It
// stands in where no pretrained embeddings are configured.
type RandomEmbedder struct {
	EmbedDim int
	Seed     int64
}

func (e RandomEmbedder) Dim() int {
	return e.EmbedDim
}

func (e RandomEmbedder) Embed(words []string) (*neural.Matrix, error) {
	out := neural.NewMatrix(len(words), e.EmbedDim)
	for i, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		rng := rand.New(rand.NewSource(e.Seed ^ int64(h.Sum64())))
		row := out.Row(i)
		for d := range row {
			row[d] = float32(rng.NormFloat64())
		}
	}
	return out, nil
}

func (e RandomEmbedder) String() string {
	return fmt.Sprintf("random_d%d_s%d", e.EmbedDim, e.Seed)
}

// Vocab derives the word list, label list, and embedding matrix from a text
// source. It is a cacheable stage: build it through Build so repeated runs
// load the three attributes instead of re-tokenizing the corpus.
type Vocab struct {
	txtSrc    TextSource
	tokenizer Tokenizer
	embedder  WordEmbedder
	lowerCase bool
	unkThres  int

	id2word []string
	id2lbl  []string
	embs    *neural.Matrix

	word2id map[string]int
	lbl2id  map[string]int
}

// VocabConfig bundles the stage's configuration.
type VocabConfig struct {
	TextSource TextSource
	Tokenizer  Tokenizer
	Embedder   WordEmbedder
	LowerCase  bool

	// UnkThres drops words seen fewer than this many times. Minimum 1.
	UnkThres int
}

// NewVocab validates the configuration; Build performs the work.
func NewVocab(cfg VocabConfig) (*Vocab, error) {
	if cfg.TextSource == nil || cfg.Tokenizer == nil || cfg.Embedder == nil {
		return nil, fmt.Errorf("dataset: vocab needs a text source, tokenizer, and embedder")
	}
	if cfg.UnkThres < 1 {
		return nil, fmt.Errorf("dataset: unk threshold %d below 1", cfg.UnkThres)
	}
	return &Vocab{
		txtSrc:    cfg.TextSource,
		tokenizer: cfg.Tokenizer,
		embedder:  cfg.Embedder,
		lowerCase: cfg.LowerCase,
		unkThres:  cfg.UnkThres,
	}, nil
}

func (v *Vocab) TypeName() string { return "Vocab" }

func (v *Vocab) CachedAttrs() []cache.Attr {
	return []cache.Attr{
		{Kind: cache.KindObject, Name: "id2word", Value: &v.id2word},
		{Kind: cache.KindRecord, Name: "id2lbl", Value: &v.id2lbl},
		{Kind: cache.KindTensor, Name: "embs", Value: &v.embs},
	}
}

func (v *Vocab) Uniquers() []cache.Uniquer {
	return []cache.Uniquer{
		{Name: "lower", Value: strconv.FormatBool(v.lowerCase)},
		{Name: "unkthres", Value: strconv.Itoa(v.unkThres)},
		{Name: "tokenizer", Value: v.tokenizer.String()},
		{Name: "embedder", Value: v.embedder.String()},
		{Name: "txtsrc", Value: v.txtSrc.String()},
	}
}

// Identity returns the stage's cache key, used by downstream stages for
// transitive invalidation.
func (v *Vocab) Identity() string {
	return cache.New(v, nil).Identity()
}

// Process tokenizes the whole source, keeps words over the unk threshold in
// first-appearance order behind the reserved tokens, collects the sorted
// label set, and embeds the vocabulary.
func (v *Vocab) Process() error {
	if v.txtSrc.Len() == 0 {
		return fmt.Errorf("dataset: text source %s is empty", v.txtSrc)
	}

	counts := make(map[string]int)
	var order []string
	labelSet := make(map[string]struct{})

	for i := 0; i < v.txtSrc.Len(); i++ {
		text, label := v.txtSrc.Row(i)
		labelSet[label] = struct{}{}
		for _, word := range v.Tokenize(text) {
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	id2word := []string{padToken, unkToken, clsToken}
	for _, word := range order {
		if counts[word] >= v.unkThres {
			id2word = append(id2word, word)
		}
	}

	id2lbl := make([]string, 0, len(labelSet))
	for label := range labelSet {
		id2lbl = append(id2lbl, label)
	}
	sort.Strings(id2lbl)

	words := id2word[numReserved:]
	wordEmbs, err := v.embedder.Embed(words)
	if err != nil {
		return fmt.Errorf("dataset: embed vocabulary: %w", err)
	}

	// PAD and CLS rows stay zero; UNK is the mean word vector.
	embs := neural.NewMatrix(len(id2word), v.embedder.Dim())
	for i := range words {
		copy(embs.Row(numReserved+i), wordEmbs.Row(i))
	}
	if len(words) > 0 {
		unk := embs.Row(UnkID)
		inv := 1 / float32(len(words))
		for i := range words {
			for d, val := range wordEmbs.Row(i) {
				unk[d] += val * inv
			}
		}
	}

	v.id2word = id2word
	v.id2lbl = id2lbl
	v.embs = embs
	return nil
}

const numReserved = 3

// Build runs the cache cycle and prepares the lookup maps.
func (v *Vocab) Build(store cache.Store, ignoreCache bool) error {
	if err := cache.New(v, store).Ensure(ignoreCache); err != nil {
		return err
	}
	v.word2id = make(map[string]int, len(v.id2word))
	for id, word := range v.id2word {
		v.word2id[word] = id
	}
	v.lbl2id = make(map[string]int, len(v.id2lbl))
	for id, label := range v.id2lbl {
		v.lbl2id[label] = id
	}
	return nil
}

// Tokenize applies the configured tokenizer and case folding.
func (v *Vocab) Tokenize(sentence string) []string {
	if v.lowerCase {
		sentence = strings.ToLower(sentence)
	}
	return v.tokenizer.Tokenize(sentence)
}

// WordID maps a token to its id, falling back to the unknown id.
func (v *Vocab) WordID(word string) int {
	if id, ok := v.word2id[word]; ok {
		return id
	}
	return UnkID
}

// LabelID maps a label string to its id.
func (v *Vocab) LabelID(label string) (int, bool) {
	id, ok := v.lbl2id[label]
	return id, ok
}

// Labels returns the ordered label set.
func (v *Vocab) Labels() []string {
	return v.id2lbl
}

// Size reports the vocabulary size including reserved ids.
func (v *Vocab) Size() int {
	return len(v.id2word)
}

// Embeddings returns the (Size × Dim) pretrained embedding matrix.
func (v *Vocab) Embeddings() *neural.Matrix {
	return v.embs
}
