package loader

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"

	"github.com/lunixbochs/pef/go/pef"
)

const DefaultSymbolCacheSize = 256

type options struct {
	log             log.Interface
	maxRelocations  int
	symbolCacheSize uint32
}

type Option func(*options)

// WithLogger receives structural warnings and parse progress. The default
// discards everything.
func WithLogger(l log.Interface) Option {
	return func(o *options) { o.log = l }
}

// WithMaxRelocations bounds the directives produced by one relocation stream.
func WithMaxRelocations(n int) Option {
	return func(o *options) { o.maxRelocations = n }
}

// WithSymbolCacheSize sets the capacity of the export lookup cache.
func WithSymbolCacheSize(n uint32) Option {
	return func(o *options) { o.symbolCacheSize = n }
}

func newOptions(opts []Option) options {
	o := options{
		log:             &log.Logger{Handler: discard.New(), Level: log.InfoLevel},
		maxRelocations:  pef.DefaultMaxRelocations,
		symbolCacheSize: DefaultSymbolCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.symbolCacheSize == 0 {
		o.symbolCacheSize = 1
	}
	if o.maxRelocations <= 0 {
		o.maxRelocations = pef.DefaultMaxRelocations
	}
	return o
}
