package define

import (
	"testing"

	"github.com/qr-lecture/devhub/internal/config"
)

func TestReplaceSubstitutesLiteral(t *testing.T) {
	r := NewReplacer([]config.Define{{Symbol: config.APIURLSymbol, Value: "https://example.test"}})
	src := []byte(`const api = import.meta.env.VITE_API_URL;
fetch(import.meta.env.VITE_API_URL + "/ask");`)

	got := string(r.Replace(src))
	want := `const api = "https://example.test";
fetch("https://example.test" + "/ask");`
	if got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestReplaceRespectsIdentifierBoundaries(t *testing.T) {
	r := NewReplacer([]config.Define{{Symbol: "__API__", Value: "x"}})

	testCases := map[string]string{
		"__API__":          `"x"`,
		"__API__X":         "__API__X",
		"a.__API__":        "a.__API__",
		"my__API__":        "my__API__",
		"(__API__)":        `("x")`,
		"__API__.length":   `"x".length`,
		"__API__ __API__2": `"x" __API__2`,
	}
	for src, want := range testCases {
		if got := string(r.Replace([]byte(src))); got != want {
			t.Fatalf("Replace(%q) = %q, want %q", src, got, want)
		}
	}
}

func TestReplacePrefersLongerSymbols(t *testing.T) {
	r := NewReplacer([]config.Define{
		{Symbol: "import.meta.env", Value: "env"},
		{Symbol: "import.meta.env.VITE_API_URL", Value: "url"},
	})
	got := string(r.Replace([]byte("import.meta.env.VITE_API_URL")))
	if got != `"url"` {
		t.Fatalf("longer symbol should win, got %s", got)
	}
}

func TestReplaceEscapesValue(t *testing.T) {
	r := NewReplacer([]config.Define{{Symbol: "__Q__", Value: `say "hi"`}})
	if got := string(r.Replace([]byte("__Q__"))); got != `"say \"hi\""` {
		t.Fatalf("value should be JSON encoded, got %s", got)
	}
}

func TestEmptyReplacerReturnsInput(t *testing.T) {
	src := []byte("import.meta.env.VITE_API_URL")
	if got := NewReplacer(nil).Replace(src); &got[0] != &src[0] {
		t.Fatalf("empty replacer should not copy input")
	}
}

func TestApplies(t *testing.T) {
	for p, want := range map[string]bool{
		"/src/main.js":    true,
		"/src/App.svelte": true,
		"/src/util.TS":    true,
		"/index.html":     false,
		"/style.css":      false,
		"/favicon":        false,
	} {
		if got := Applies(p); got != want {
			t.Fatalf("Applies(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestReplaceChecksBoundaryAgainstWholeSource(t *testing.T) {
	r := NewReplacer([]config.Define{{Symbol: "__API__", Value: "x"}})
	if got := string(r.Replace([]byte("__API____API__"))); got != "__API____API__" {
		t.Fatalf("adjacent symbols form one identifier, got %s", got)
	}
}

func TestReplaceSkipsStringsAndComments(t *testing.T) {
	r := NewReplacer([]config.Define{{Symbol: config.APIURLSymbol, Value: "u"}})

	testCases := map[string]string{
		`console.log("missing import.meta.env.VITE_API_URL")`: `console.log("missing import.meta.env.VITE_API_URL")`,
		`'import.meta.env.VITE_API_URL'`:                      `'import.meta.env.VITE_API_URL'`,
		`"a \" import.meta.env.VITE_API_URL"`:                 `"a \" import.meta.env.VITE_API_URL"`,
		"// import.meta.env.VITE_API_URL\nx":                  "// import.meta.env.VITE_API_URL\nx",
		"/* import.meta.env.VITE_API_URL */ x":                "/* import.meta.env.VITE_API_URL */ x",
		"`set import.meta.env.VITE_API_URL`":                  "`set import.meta.env.VITE_API_URL`",
		`"s" + import.meta.env.VITE_API_URL + 's'`:            `"s" + "u" + 's'`,
		"// note\nimport.meta.env.VITE_API_URL":               "// note\n\"u\"",
	}
	for src, want := range testCases {
		if got := string(r.Replace([]byte(src))); got != want {
			t.Fatalf("Replace(%q) = %q, want %q", src, got, want)
		}
	}
}

func TestReplaceInsideTemplateExpressions(t *testing.T) {
	r := NewReplacer([]config.Define{{Symbol: config.APIURLSymbol, Value: "u"}})

	src := "`${import.meta.env.VITE_API_URL}/ask import.meta.env.VITE_API_URL ${f({a: import.meta.env.VITE_API_URL})}` + import.meta.env.VITE_API_URL"
	want := "`${\"u\"}/ask import.meta.env.VITE_API_URL ${f({a: \"u\"})}` + \"u\""
	if got := string(r.Replace([]byte(src))); got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
}
