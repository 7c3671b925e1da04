package embedder

import "testing"

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wantName string
		wantDim  int
	}{
		{"AllMiniLML6V2", "AllMiniLML6V2", 384},
		{"BGEBaseEN", "BGEBaseEN", 768},
		{"BGEBaseENV15", "BGEBaseENV15", 768},
		{"BGESmallEN", "BGESmallEN", 384},
		{"BGESmallENV15", "BGESmallENV15", 384},
		{"BGESmallZH", "BGESmallZH", 512},
		{"MLE5Large", "MLE5Large", 1024},
		{"", DefaultModel, 768},
		{"NotARealModel", DefaultModel, 768},
		{"bgebaseen", DefaultModel, 768},
	}
	for _, tc := range tests {
		got := Select(tc.name)
		if got.Name != tc.wantName || got.Dimension != tc.wantDim {
			t.Errorf("Select(%q) = %s/%d, want %s/%d", tc.name, got.Name, got.Dimension, tc.wantName, tc.wantDim)
		}
	}
}

func TestListModels_CopyInOrder(t *testing.T) {
	t.Parallel()

	models := ListModels()
	if len(models) != 7 {
		t.Fatalf("ListModels returned %d entries, want 7", len(models))
	}
	if models[0].Name != "AllMiniLML6V2" || models[6].Name != "MLE5Large" {
		t.Errorf("unexpected order: first=%s last=%s", models[0].Name, models[6].Name)
	}

	models[0].Dimension = 1
	if m, _ := Lookup("AllMiniLML6V2"); m.Dimension != 384 {
		t.Error("mutating the ListModels result changed the registry")
	}

	seen := map[string]bool{}
	for _, m := range models {
		if seen[m.Name] {
			t.Errorf("duplicate registry name %q", m.Name)
		}
		seen[m.Name] = true
		if m.FastEmbedModel == "" || m.HuggingFaceID == "" {
			t.Errorf("%s: missing backend model ids", m.Name)
		}
	}
}
