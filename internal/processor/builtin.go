package processor

import (
	"errors"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// BuiltinOptions configures RegisterBuiltins.
type BuiltinOptions struct {
	Generator        Generator
	BatchConcurrency int
}

// RegisterBuiltins registers the echo, product_description, batch_descriptions and
// extract processors.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) error {
	d := NewDescriptions(opts.Generator, opts.BatchConcurrency)
	return errors.Join(
		r.Handle(model.JobTypeEcho, Echo),
		Register(r, model.JobTypeProductDescription, d.Describe),
		Register(r, model.JobTypeBatchDescriptions, d.DescribeBatch),
		Register(r, model.JobTypeExtract, Extract),
	)
}
