// Package options contains flags and options for initializing the document QA server.
package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	docqasvc "github.com/kart-io/docqa/internal/docqa"
	"github.com/kart-io/docqa/pkg/app"
	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	docqaopts "github.com/kart-io/docqa/pkg/options/docqa"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	notifyopts "github.com/kart-io/docqa/pkg/options/notify"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"
)

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// OllamaOptions contains Ollama client configuration.
	OllamaOptions *ollamaopts.Options `json:"ollama" mapstructure:"ollama"`

	// DocQAOptions contains retrieval pipeline configuration.
	DocQAOptions *docqaopts.Options `json:"rag" mapstructure:"rag"`

	// CacheOptions contains query cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// NotifyOptions contains developer notification configuration.
	NotifyOptions *notifyopts.Options `json:"notify" mapstructure:"notify"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":8082"

	return &ServerOptions{
		HTTPOptions:     httpOpts,
		LogOptions:      logopts.NewOptions(),
		MilvusOptions:   milvusopts.NewOptions(),
		OllamaOptions:   ollamaopts.NewOptions(),
		DocQAOptions:    docqaopts.NewOptions(),
		CacheOptions:    cacheopts.NewOptions(),
		NotifyOptions:   notifyopts.NewOptions(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// AddFlags adds all server flags to the flagset.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.HTTPOptions.AddFlags(fs)
	o.LogOptions.AddFlags(fs)
	o.MilvusOptions.AddFlags(fs)
	o.OllamaOptions.AddFlags(fs, "ollama.")
	o.DocQAOptions.AddFlags(fs)
	o.CacheOptions.AddFlags(fs)
	o.NotifyOptions.AddFlags(fs)

	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.DocQAOptions.Complete(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.NotifyOptions.Complete(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.HTTPOptions.Validate()...)
	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.DocQAOptions.Store == docqaopts.StoreMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	if err := o.OllamaOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.DocQAOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.NotifyOptions.Validate()...)

	return errors.Join(errs...)
}

// Config builds a docqasvc.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docqasvc.Config, error) {
	return &docqasvc.Config{
		HTTPOptions:     o.HTTPOptions,
		LogOptions:      o.LogOptions,
		MilvusOptions:   o.MilvusOptions,
		OllamaOptions:   o.OllamaOptions,
		DocQAOptions:    o.DocQAOptions,
		CacheOptions:    o.CacheOptions,
		NotifyOptions:   o.NotifyOptions,
		ShutdownTimeout: o.ShutdownTimeout,
	}, nil
}
