// Package docqa provides retrieval pipeline configuration options.
package docqa

import (
	"fmt"

	"github.com/kart-io/docqa/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Vector store backend names.
const (
	StoreMemory = "memory"
	StoreMilvus = "milvus"
)

// Options contains retrieval pipeline configuration.
type Options struct {
	// ChunkSize is the size of text chunks in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between consecutive chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of results to return from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// EmbeddingDim is the dimension of fallback embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// Store selects the vector store backend (memory, milvus).
	Store string `json:"store" mapstructure:"store"`

	// Collection is the name of the Milvus collection.
	Collection string `json:"collection" mapstructure:"collection"`

	// UploadDir is the directory for storing uploaded documents.
	UploadDir string `json:"upload-dir" mapstructure:"upload-dir"`

	// MaxFileSize is the maximum accepted upload size in bytes.
	MaxFileSize int64 `json:"max-file-size" mapstructure:"max-file-size"`

	// RegistryPath is the path of the persisted document registry file.
	RegistryPath string `json:"registry-path" mapstructure:"registry-path"`

	// SystemPrompt is the prompt template for answer generation.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`
}

// DefaultSystemPrompt is the default prompt template for answer generation.
const DefaultSystemPrompt = `You are a helpful AI assistant. Use the following context to answer the question. If the answer cannot be found in the context, say so.

Context:
{{context}}

Question: {{question}}

Answer:`

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		TopK:         4,
		EmbeddingDim: 384, // 哈希降级向量维度
		Store:        StoreMemory,
		Collection:   "docqa_chunks",
		UploadDir:    "_output/uploads",
		MaxFileSize:  10 << 20,
		RegistryPath: "_output/documents.json",
		SystemPrompt: DefaultSystemPrompt,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"rag.chunk-size", o.ChunkSize, "Size of text chunks.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"rag.chunk-overlap", o.ChunkOverlap, "Overlap between chunks.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"rag.top-k", o.TopK, "Number of results from similarity search.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"rag.embedding-dim", o.EmbeddingDim, "Fallback embedding vector dimension.")
	fs.StringVar(&o.Store, options.Join(prefixes...)+"rag.store", o.Store, "Vector store backend (memory, milvus).")
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"rag.collection", o.Collection, "Milvus collection name.")
	fs.StringVar(&o.UploadDir, options.Join(prefixes...)+"rag.upload-dir", o.UploadDir, "Directory for uploaded documents.")
	fs.Int64Var(&o.MaxFileSize, options.Join(prefixes...)+"rag.max-file-size", o.MaxFileSize, "Maximum upload size in bytes.")
	fs.StringVar(&o.RegistryPath, options.Join(prefixes...)+"rag.registry-path", o.RegistryPath, "Document registry file path.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk-overlap must not be negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be smaller than chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	if o.Store != StoreMemory && o.Store != StoreMilvus {
		errs = append(errs, fmt.Errorf("store must be %q or %q", StoreMemory, StoreMilvus))
	}
	if o.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("max-file-size must be positive"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}
