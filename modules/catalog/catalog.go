// Package catalog holds the static style taxonomy offered to users.
package catalog

// Category - one named group of style labels
type Category struct {
	Name   string   `json:"name"`
	Styles []string `json:"styles"`
}

// Declaration order is the display order.
var categories = []Category{
	{
		Name: "Anime Styles",
		Styles: []string{
			"Painted Anime", "Cinematic", "Digital Painting", "Concept Art",
			"Vintage Anime", "Neon Vintage Anime", "3D Disney Character",
			"2D Disney Character", "50s Infomercial Anime", "Studio Ghibli",
			"Drawn Anime", "Cute Anime", "Soft Anime",
		},
	},
	{
		Name: "Painting & Realism",
		Styles: []string{
			"Oil Painting - Realism", "Oil Painting - Old", "Fantasy Painting",
			"Fantasy Landscape", "Fantasy Portrait", "Digital Painting",
			"Watercolor", "Painterly", "Concept Sketch", "Disney Sketch",
		},
	},
	{
		Name: "Comic/Illustration",
		Styles: []string{
			"Vintage Comic", "Franco-Belgian Comic", "Tintin Comic",
			"Flat Illustration", "Vintage Pulp Art", "Medieval",
			"Traditional Japanese", "YuGiOh Art", "MTG Card",
		},
	},
	{
		Name: "3D & Digital",
		Styles: []string{
			"3D Pokemon", "Painted Pokemon", "3D Isometric Icon",
			"Cute 3D Icon", "Claymotion", "3D Emoji", "Cute 3D Icon Set",
		},
	},
	{
		Name: "Retro/Vintage",
		Styles: []string{
			"1990s Photo", "1980s Photo", "1970s Photo", "1960s Photo",
			"1950s Photo", "1940s Photo", "1930s Photo", "1920s Photo",
			"50s Enamel Sign", "Vintage Pulp Art",
		},
	},
	{
		Name: "Specialized Techniques",
		Styles: []string{
			"Pixel Art", "Oil Painting", "Crayon Drawing", "Pencil Sketch",
			"Tattoo Design", "Professional Photo", "Cortoon Style",
		},
	},
	{
		Name: "Fantasy & Unique",
		Styles: []string{
			"Fantasy World Map", "Fantasy City Map", "Mongo Style",
			"Nihongo Pointing", "Waifu Style", "Cursed Photo",
			"Furry - Cinematic", "Furry - Pointed", "Claymotion",
		},
	},
}

// Categories returns a copy of every category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		out[i] = Category{Name: c.Name, Styles: append([]string(nil), c.Styles...)}
	}
	return out
}

// Names returns the category names in display order.
func Names() []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names
}

// Styles returns the ordered styles of a category.
func Styles(category string) ([]string, bool) {
	for _, c := range categories {
		if c.Name == category {
			return append([]string(nil), c.Styles...), true
		}
	}
	return nil, false
}

// Contains reports whether style appears in any category.
func Contains(style string) bool {
	for _, c := range categories {
		for _, s := range c.Styles {
			if s == style {
				return true
			}
		}
	}
	return false
}

// DefaultStyle is the first style of the first category.
func DefaultStyle() string {
	return categories[0].Styles[0]
}
