package persona

import "testing"

func TestRegistryLookup(t *testing.T) {
	reg := Default()

	p, ok := reg.Get("technical-expert")
	if !ok {
		t.Fatalf("expected technical-expert to exist")
	}
	if p.SystemPrompt == "" || p.Greeting == "" {
		t.Fatalf("persona missing prompt or greeting: %+v", p)
	}

	if _, ok := reg.Get("nope"); ok {
		t.Fatalf("unexpected persona for unknown id")
	}
}

func TestRegistryListOrderAndDuplicates(t *testing.T) {
	reg := NewRegistry([]Persona{
		{ID: "a", Name: "first"},
		{ID: "b", Name: "second"},
		{ID: "a", Name: "dup ignored"},
	})

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(list))
	}
	if list[0].ID != "a" || list[0].Name != "first" || list[1].ID != "b" {
		t.Fatalf("unexpected order or dedup: %+v", list)
	}
}
