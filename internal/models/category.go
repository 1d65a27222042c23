package models

import "strings"

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var Categories = []Category{
	{ID: "streets", Name: "Calçadas e Vias", Icon: "🛣️"},
	{ID: "lighting", Name: "Iluminação", Icon: "💡"},
	{ID: "garbage", Name: "Lixo", Icon: "🗑️"},
	{ID: "water", Name: "Água e Esgoto", Icon: "💧"},
	{ID: "signs", Name: "Sinalização", Icon: "🚸"},
	{ID: "parks", Name: "Praças e Parques", Icon: "🌳"},
	{ID: "public-buildings", Name: "Prédios Públicos", Icon: "🏛️"},
	{ID: "other", Name: "Outros", Icon: "📋"},
}

// LookupCategory accepts either the category id or its display name.
func LookupCategory(v string) (Category, bool) {
	v = strings.TrimSpace(v)
	for _, c := range Categories {
		if c.ID == v || strings.EqualFold(c.Name, v) {
			return c, true
		}
	}
	return Category{}, false
}
