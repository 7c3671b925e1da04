package embedder

import "errors"

// ErrFastEmbedUnsupported is returned when the fastembed backend cannot load a
// registry model. MLE5Large is one; serve it through tei, ollama or openai.
var ErrFastEmbedUnsupported = errors.New("fastembed: model not supported, use EMBEDDING_BACKEND=tei, ollama or openai")

// ModelDescriptor describes one supported embedding model.
type ModelDescriptor struct {
	// Name is the registry name used in configuration, e.g. "BGEBaseEN".
	Name string

	// Dimension is the length of every vector the model produces.
	Dimension int

	// Description is a short human-readable summary.
	Description string

	// FastEmbedModel is the model identifier understood by fastembed.
	FastEmbedModel string

	// HuggingFaceID is the upstream model repository, sent to HTTP
	// backends when no remote model name is configured.
	HuggingFaceID string
}

// DefaultModel is the registry name selected when none, or an unknown one, is given.
const DefaultModel = "BGEBaseEN"

// registry is the closed, ordered set of supported models.
var registry = []ModelDescriptor{
	{
		Name:           "AllMiniLML6V2",
		Dimension:      384,
		Description:    "Sentence Transformer model, MiniLM-L6-v2",
		FastEmbedModel: "fast-all-MiniLM-L6-v2",
		HuggingFaceID:  "sentence-transformers/all-MiniLM-L6-v2",
	},
	{
		Name:           "BGEBaseEN",
		Dimension:      768,
		Description:    "Base English model",
		FastEmbedModel: "fast-bge-base-en",
		HuggingFaceID:  "BAAI/bge-base-en",
	},
	{
		Name:           "BGEBaseENV15",
		Dimension:      768,
		Description:    "v1.5 release of the base English model",
		FastEmbedModel: "fast-bge-base-en-v1.5",
		HuggingFaceID:  "BAAI/bge-base-en-v1.5",
	},
	{
		Name:           "BGESmallEN",
		Dimension:      384,
		Description:    "Fast English model",
		FastEmbedModel: "fast-bge-small-en",
		HuggingFaceID:  "BAAI/bge-small-en",
	},
	{
		Name:           "BGESmallENV15",
		Dimension:      384,
		Description:    "v1.5 release of the fast English model",
		FastEmbedModel: "fast-bge-small-en-v1.5",
		HuggingFaceID:  "BAAI/bge-small-en-v1.5",
	},
	{
		Name:           "BGESmallZH",
		Dimension:      512,
		Description:    "v1.5 release of the fast Chinese model",
		FastEmbedModel: "fast-bge-small-zh-v1.5",
		HuggingFaceID:  "BAAI/bge-small-zh-v1.5",
	},
	// Not shipped by fastembed-go; needs an HTTP backend.
	{
		Name:           "MLE5Large",
		Dimension:      1024,
		Description:    "Multilingual model, e5-large",
		FastEmbedModel: "fast-multilingual-e5-large",
		HuggingFaceID:  "intfloat/multilingual-e5-large",
	},
}

// ListModels returns a copy of the registry in declaration order.
func ListModels() []ModelDescriptor {
	out := make([]ModelDescriptor, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the descriptor with exactly the given name.
func Lookup(name string) (ModelDescriptor, bool) {
	for _, m := range registry {
		if m.Name == name {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// Select returns the descriptor named name, or the default model when name is
// empty or unknown. It never fails.
func Select(name string) ModelDescriptor {
	if m, ok := Lookup(name); ok {
		return m
	}
	m, _ := Lookup(DefaultModel)
	return m
}
