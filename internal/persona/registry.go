package persona

// Persona is a named system-prompt configuration defining an agent's behavior.
// The registry is immutable after construction; nothing mutates personas at runtime.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"-"`
	Greeting     string `json:"greeting"`
	Personality  string `json:"personality"`
	Style        string `json:"style"`
}

type Registry struct {
	byID  map[string]Persona
	order []string
}

func NewRegistry(personas []Persona) *Registry {
	r := &Registry{byID: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		if _, dup := r.byID[p.ID]; dup {
			continue
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return r
}

func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// List returns personas in registration order.
func (r *Registry) List() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
