package chain

import "fmt"

// Registry dispatches a payment to the verifier of its chain.
type Registry struct {
	verifiers map[Chain]Verifier
}

func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[Chain]Verifier, len(verifiers))}
	for _, v := range verifiers {
		r.verifiers[v.Chain()] = v
	}
	return r
}

func (r *Registry) For(c Chain) (Verifier, error) {
	v, ok := r.verifiers[c]
	if !ok {
		return nil, fmt.Errorf("no verifier registered for chain %q", c)
	}
	return v, nil
}
