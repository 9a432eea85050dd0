package expand

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fernandadias/discoveryrag/internal/vocab"
)

func TestExpand_SupersetOfEveryExpansionTerm(t *testing.T) {
	v := vocab.Default()
	e := New(v)
	for _, key := range v.SynonymKeys() {
		q := "fale sobre " + key
		got := e.Expand(q)
		if !strings.HasPrefix(got, q) {
			t.Errorf("%q: expansion %q does not start with the query", key, got)
		}
		syns, _ := v.Synonyms(key)
		for _, s := range syns {
			if !vocab.Contains(got, s) {
				t.Errorf("%q: expansion %q misses %q", key, got, s)
			}
		}
	}
}

func TestExpand_ProfileIntent(t *testing.T) {
	e := New(nil)
	got := e.Expand("quais são os perfis de usuários?")
	for _, term := range vocab.Default().ProfileTerms() {
		if !vocab.Contains(got, term) {
			t.Errorf("profile query expansion %q misses %q", got, term)
		}
	}
	// "perfis" resolves to the "perfil" key through its plural.
	if !vocab.Contains(got, "tipos de usuários") {
		t.Errorf("plural token not expanded: %q", got)
	}
}

func TestExpand_NoDuplicatesAndNoRepeats(t *testing.T) {
	e := New(vocab.New(nil, nil, map[string][]string{
		"perfil":  {"personas", "segmentação"},
		"persona": {"perfil", "segmentação", "arquétipo"},
	}, nil, nil))

	got := e.Expand("perfil e persona")
	want := "perfil e persona personas segmentação arquétipo"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestExpand_Unchanged(t *testing.T) {
	e := New(nil)
	if got := e.Expand("  horário de funcionamento  "); got != "horário de funcionamento" {
		t.Errorf("Expand = %q", got)
	}
	if got := e.Expand("   "); got != "" {
		t.Errorf("Expand of blank = %q", got)
	}
}

func TestExpand_Capped(t *testing.T) {
	e := New(nil)
	e.MaxLen = 40
	got := e.Expand("perfil do usuário na home")
	if n := utf8.RuneCountInString(got); n > 40 {
		t.Errorf("expanded length %d exceeds cap", n)
	}
	if !strings.HasPrefix(got, "perfil do usuário na home") {
		t.Errorf("cap must keep the original query: %q", got)
	}
	if strings.HasSuffix(got, " ") {
		t.Errorf("trailing space in %q", got)
	}

	long := strings.Repeat("palavra ", 200) + "perfil"
	if n := utf8.RuneCountInString(New(nil).Expand(long)); n > DefaultMaxLen {
		t.Errorf("default cap exceeded: %d", n)
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"curto", 10, "curto"},
		{"uma frase longa", 8, "uma"},
		{"uma frase longa", 9, "uma frase"},
		{"uma frase longa", 10, "uma frase"},
		{"semespacosnenhum", 5, "semes"},
		{"ação rápida", 6, "ação"},
	}
	for _, tt := range tests {
		if got := truncateWords(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateWords(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTerms(t *testing.T) {
	got := Terms("Quais são os PERFIS de usuários, e os perfis da Home?", 3)
	want := []string{"quais", "perfis", "usuarios", "home"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Terms = %v, want %v", got, want)
	}
	if got := Terms("a b c", 0); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Terms min 0 = %v", got)
	}
}

func TestWithSynonyms(t *testing.T) {
	e := New(vocab.New(nil, nil, map[string][]string{
		"perfil": {"Personas", "segmentação"},
	}, nil, nil))
	got := e.WithSynonyms([]string{"perfis", "personas", "home"})
	want := []string{"perfis", "personas", "segmentacao", "home"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WithSynonyms = %v, want %v", got, want)
	}
}

func TestForms(t *testing.T) {
	e := New(vocab.New(nil, nil, map[string][]string{
		"perfil": {"Personas", "segmentação"},
	}, nil, nil))
	got := e.Forms("Perfis de USUÁRIOS na home", 3)
	want := []string{"perfis", "personas", "segmentação", "segmentacao", "usuários", "usuarios", "home"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Forms = %v, want %v", got, want)
	}
	// Decomposed input composes before lowercasing.
	if got := e.Forms("usua\u0301rios", 3); !reflect.DeepEqual(got, []string{"usuários", "usuarios"}) {
		t.Errorf("Forms NFD = %q", got)
	}
}
