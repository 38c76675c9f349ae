package receiving

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Limón  Tahití", "limon tahiti"},
		{"pan,rallado", "pan rallado"},
		{"Ñoquis (x 500g)!", "noquis x 500g"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.input), tt.input)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"tomat", "perita", "5kg"}, tokenize("Tomates perita 5kg 4500"))
	assert.Equal(t, []string{"pan", "miga"}, tokenize("pan de miga"))
	assert.Equal(t, []string{"pimiento", "rojo"}, tokenize("pimientos rojos"))
	assert.Equal(t, tokenize("limón"), tokenize("limones"))
}

func catalog() []Candidate {
	names := []struct{ name, sku string }{
		{"Tomate perita", "TOM-PER"},
		{"Tomate cherry", ""},
		{"Cebolla blanca", ""},
		{"Cebolla morada", ""},
		{"Pimiento rojo", ""},
		{"Pimiento verde", ""},
		{"Leche entera", ""},
		{"Leche descremada", ""},
		{"Huevo", "HUEVO"},
		{"Limón", ""},
	}
	out := make([]Candidate, len(names))
	for i, n := range names {
		out[i] = Candidate{ID: uuid.New(), Name: n.name, SKU: n.sku, Unit: "g"}
	}
	return out
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(catalog())

	tests := []struct {
		desc       string
		status     Status
		item       string
		candidates []string
	}{
		{"tomates perita", Matched, "Tomate perita", nil},
		{"tom-per caja", Matched, "Tomate perita", nil},
		{"tomate", Ambiguous, "", []string{"Tomate perita", "Tomate cherry"}},
		{"cebolla blanca", Matched, "Cebolla blanca", nil},
		{"pimientos rojos", Matched, "Pimiento rojo", nil},
		{"pimiento amarillo", Unmatched, "", nil},
		{"leche", Ambiguous, "", []string{"Leche entera", "Leche descremada"}},
		{"huevo", Matched, "Huevo", nil},
		{"limones", Matched, "Limón", nil},
		{"azúcar", Unmatched, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := m.Match(tt.desc)

			require.Equal(t, tt.status, got.Status, "got %+v", got)
			if tt.item != "" {
				require.NotNil(t, got.Item)
				assert.Equal(t, tt.item, got.Item.Name)
			} else {
				assert.Nil(t, got.Item)
			}
			var names []string
			for _, c := range got.Candidates {
				names = append(names, c.Name)
			}
			assert.ElementsMatch(t, tt.candidates, names)
		})
	}
}

func TestMatcher_Empty(t *testing.T) {
	assert.Equal(t, Unmatched, NewMatcher(nil).Match("tomate").Status)
}

func TestMatch_JSON(t *testing.T) {
	b, err := json.Marshal(Match{Status: Ambiguous})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ambiguous"}`, string(b))

	assert.Equal(t, "unknown", Status(9).String())
}
