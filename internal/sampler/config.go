package sampler

import "github.com/tinyforge/llminfer/internal/errs"

// Config is the per-request sampler configuration of §6: the fixed
// pipeline of §4.7 is applied in this order, with neutral values
// disabling each stage.
type Config struct {
	Temperature       float32 // [0,2]; <= GreedyThreshold means greedy
	TopK              int     // >= 0; 0 disables
	TopP              float32 // (0,1]; >= 1.0 disables
	MinP              float32 // [0,1]; 0 disables
	RepetitionPenalty float32 // >= 1.0; 1.0 disables
	PresencePenalty   float32 // >= 0; 0 disables
	FrequencyPenalty  float32 // >= 0; 0 disables
	RepetitionWindow  int     // >= 0; 0 disables all three penalties
}

// GreedyThreshold is the temperature at and below which the sampler
// switches to greedy argmax selection per §4.7.
const GreedyThreshold = 1e-3

// DefaultConfig returns a neutral pipeline: greedy is off, no filters
// active, no penalties. Callers override individual fields.
func DefaultConfig() Config {
	return Config{
		Temperature: 1.0,
		TopK:        0,
		TopP:        1.0,
		MinP:        0,
		RepetitionPenalty: 1.0,
		PresencePenalty:   0,
		FrequencyPenalty:  0,
		RepetitionWindow:  0,
	}
}

// Validate checks the bounds §6 documents for each field, returning an
// InvalidOptions error naming the first violation.
func (c Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return errs.Newf(errs.InvalidOptions, "temperature %v out of range [0,2]", c.Temperature)
	}
	if c.TopK < 0 {
		return errs.Newf(errs.InvalidOptions, "top_k %d must be >= 0", c.TopK)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return errs.Newf(errs.InvalidOptions, "top_p %v must be in (0,1]", c.TopP)
	}
	if c.MinP < 0 || c.MinP > 1 {
		return errs.Newf(errs.InvalidOptions, "min_p %v out of range [0,1]", c.MinP)
	}
	if c.RepetitionPenalty < 1.0 {
		return errs.Newf(errs.InvalidOptions, "repetition_penalty %v must be >= 1.0", c.RepetitionPenalty)
	}
	if c.PresencePenalty < 0 {
		return errs.Newf(errs.InvalidOptions, "presence_penalty %v must be >= 0", c.PresencePenalty)
	}
	if c.FrequencyPenalty < 0 {
		return errs.Newf(errs.InvalidOptions, "frequency_penalty %v must be >= 0", c.FrequencyPenalty)
	}
	if c.RepetitionWindow < 0 {
		return errs.Newf(errs.InvalidOptions, "repetition_window %d must be >= 0", c.RepetitionWindow)
	}
	return nil
}

// IsGreedy reports whether this config selects greedy argmax decoding.
func (c Config) IsGreedy() bool { return c.Temperature <= GreedyThreshold }
