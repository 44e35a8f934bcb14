// Package modelfile defines the loader boundary §1 calls an external
// collaborator (GGUF parsing is explicitly out of scope) and ships one
// concrete Loader: a synthetic, seeded-random bundle generator used by
// tests and by cmd/infercli's demo mode.
package modelfile

import (
	"github.com/tinyforge/llminfer/internal/model"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

// Loader produces a ModelBundle and its paired Tokenizer from some
// external representation. The core only depends on this interface;
// internal/model never imports a concrete file format.
type Loader interface {
	Load(path string) (*model.Bundle, tokenizer.Tokenizer, error)
}
