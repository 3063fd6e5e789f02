package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/address-formatter/internal/registry"
	"github.com/yourorg/address-formatter/internal/rules"
)

type CountriesDeps struct {
	Registry *registry.Registry
}

type countryView struct {
	Code              string     `json:"code"`
	Name              string     `json:"name,omitempty"`
	UseCountry        string     `json:"use_country,omitempty"`
	ChangeCountry     string     `json:"change_country,omitempty"`
	AddComponent      string     `json:"add_component,omitempty"`
	AddressTemplate   string     `json:"address_template"`
	FallbackTemplate  string     `json:"fallback_template"`
	Replace           [][]string `json:"replace,omitempty"`
	PostformatReplace [][]string `json:"postformat_replace,omitempty"`
	Languages         []string   `json:"languages,omitempty"`
}

func RegisterCountries(r chi.Router, d CountriesDeps) {
	r.Get("/countries", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true, "codes": d.Registry.Codes()})
	})

	r.Get("/countries/{code}", func(w http.ResponseWriter, req *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(chi.URLParam(req, "code")))
		rec, ok := d.Registry.Country(code)
		if !ok {
			WriteError(w, req, http.StatusNotFound, CodeNotFound, "no record for "+code)
			return
		}
		render.JSON(w, req, viewOf(d.Registry, rec))
	})
}

// viewOf shows a record with its template references resolved to text.
// Missing templates fall back to the default record's.
func viewOf(reg *registry.Registry, rec *registry.CountryRecord) countryView {
	def := reg.Default()
	v := countryView{
		Code:              rec.Code,
		UseCountry:        rec.UseCountry,
		ChangeCountry:     rec.ChangeCountry,
		AddComponent:      rec.AddComponent,
		AddressTemplate:   rec.AddressTemplate,
		FallbackTemplate:  rec.FallbackTemplate,
		Replace:           rulePairs(rec.Replace),
		PostformatReplace: rulePairs(rec.PostformatReplace),
		Languages:         reg.Languages(rec.Code),
	}
	v.Name, _ = reg.CountryName(rec.Code)
	if v.AddressTemplate == "" {
		v.AddressTemplate = def.AddressTemplate
	}
	if v.FallbackTemplate == "" {
		v.FallbackTemplate = def.FallbackTemplate
	}
	v.AddressTemplate = reg.ResolveTemplate(v.AddressTemplate)
	v.FallbackTemplate = reg.ResolveTemplate(v.FallbackTemplate)
	return v
}

func rulePairs(l rules.List) [][]string {
	if len(l) == 0 {
		return nil
	}
	out := make([][]string, 0, len(l))
	for _, r := range l {
		out = append(out, []string{r.Pattern, r.Replacement})
	}
	return out
}
