package signature

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ProviderHeader names the provider explicitly and wins over sniffing
const ProviderHeader = "x-signature-provider"

// Registry selects a provider for a payload. Sniffing tries providers in
// registration order.
type Registry struct {
	providers []Provider
	byName    map[string]Provider
}

// NewRegistry creates a registry of the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers = append(r.providers, p)
		r.byName[p.Name()] = p
	}
	return r
}

// DefaultRegistry knows every supported provider
func DefaultRegistry() *Registry {
	return NewRegistry(DocuSign{}, ClickSign{}, Autentique{}, Internal{})
}

// Names lists the registered provider keys
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Detect picks the provider named by header, or the first whose shape
// matches the payload
func (r *Registry) Detect(header string, payload map[string]interface{}) (Provider, error) {
	if name := strings.ToLower(strings.TrimSpace(header)); name != "" {
		p, ok := r.byName[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownProvider, "provider %q", name)
		}
		return p, nil
	}
	for _, p := range r.providers {
		if p.Matches(payload) {
			return p, nil
		}
	}
	return nil, ErrUnknownProvider
}

// Normalize turns a raw webhook body into a validated canonical event.
// It has no side effects.
func (r *Registry) Normalize(header string, raw []byte) (CanonicalEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CanonicalEvent{}, errors.Wrap(ErrInvalidPayload, "body is not a JSON object")
	}

	p, err := r.Detect(header, payload)
	if err != nil {
		return CanonicalEvent{}, err
	}

	ev, err := p.Parse(raw)
	if err != nil {
		return CanonicalEvent{Provider: p.Name()}, err
	}
	ev.Provider = p.Name()
	ev.ContractID = strings.ToLower(strings.TrimSpace(ev.ContractID))
	if err := Validate(ev); err != nil {
		return ev, err
	}
	return ev, nil
}
