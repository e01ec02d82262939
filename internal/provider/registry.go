package provider

import "fmt"

// Registry resolves a provider by name, injected into the import
// runner and enrichment engine rather than looked up through a global
// so tests can substitute fakes.
type Registry struct {
	providers      map[string]Provider
	priceProviders map[string]PriceProvider
}

func NewRegistry() *Registry {
	return &Registry{
		providers:      make(map[string]Provider),
		priceProviders: make(map[string]PriceProvider),
	}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Metadata().Name] = p
}

func (r *Registry) RegisterPriceProvider(p PriceProvider) {
	r.priceProviders[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", name)
	}
	return p, nil
}

func (r *Registry) GetPriceProvider(name string) (PriceProvider, error) {
	p, ok := r.priceProviders[name]
	if !ok {
		return nil, fmt.Errorf("no price provider registered for %q", name)
	}
	return p, nil
}

// PriceProviders returns every registered price provider, in
// registration-independent but stable iteration via the caller's own
// ordering preference (callers sort by name if order matters).
func (r *Registry) PriceProviders() map[string]PriceProvider {
	return r.priceProviders
}
