// Package process turns staged raw events into canonical transactions:
// group by blockchain hash, hand each group to the provider-specific
// Transformer, classify the result, and persist.
package process

import (
	"fmt"

	"ledgerforge/internal/models"
)

// Transformer converts one hash group of raw events belonging to a
// single account into a canonical Transaction, before classification.
type Transformer interface {
	ProviderName() string
	Transform(group []models.RawEvent, account models.Account) (models.Transaction, error)
}

// TransformerRegistry resolves a Transformer by provider name.
type TransformerRegistry struct {
	transformers map[string]Transformer
}

func NewTransformerRegistry() *TransformerRegistry {
	return &TransformerRegistry{transformers: make(map[string]Transformer)}
}

func (r *TransformerRegistry) Register(t Transformer) {
	r.transformers[t.ProviderName()] = t
}

func (r *TransformerRegistry) Get(providerName string) (Transformer, error) {
	t, ok := r.transformers[providerName]
	if !ok {
		return nil, fmt.Errorf("process: no transformer registered for provider %q", providerName)
	}
	return t, nil
}
