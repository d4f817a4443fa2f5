// Package catalog holds the merchandise offered in the store. Prices are
// fixed in code so an order can lock them in at checkout time.
package catalog

import (
	"fmt"
	"slices"
)

type Category string

const (
	CategoryTShirt Category = "tshirt"
	CategoryHoodie Category = "hoodie"
	CategoryMug    Category = "mug"
)

type Variant struct {
	ID               string `json:"id"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	ColorHex         string `json:"colorHex"`
	PartnerVariantID string `json:"partnerVariantId"`
	InStock          bool   `json:"inStock"`
}

type Product struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Images      []string  `json:"images"`
	Category    Category  `json:"category"`
	Variants    []Variant `json:"variants"`
}

type Color struct {
	Name string `json:"color"`
	Hex  string `json:"hex"`
}

// Catalog is an immutable set of products.
type Catalog struct {
	products []Product
}

func New(products []Product) *Catalog {
	return &Catalog{products: products}
}

// Default returns the store's built-in catalog.
func Default() *Catalog {
	return New(defaultProducts)
}

func (c *Catalog) Products() []Product {
	return c.products
}

func (c *Catalog) Product(id string) (*Product, bool) {
	for i := range c.products {
		if c.products[i].ID == id || c.products[i].Slug == id {
			return &c.products[i], true
		}
	}
	return nil, false
}

func (c *Catalog) Variant(productID, variantID string) (*Product, *Variant, bool) {
	p, ok := c.Product(productID)
	if !ok {
		return nil, nil, false
	}
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return p, &p.Variants[i], true
		}
	}
	return p, nil, false
}

// AvailableSizes returns in-stock sizes in catalog order.
func (p *Product) AvailableSizes() []string {
	var sizes []string
	for _, v := range p.Variants {
		if v.InStock && !slices.Contains(sizes, v.Size) {
			sizes = append(sizes, v.Size)
		}
	}
	return sizes
}

// AvailableColors returns in-stock colors in catalog order.
func (p *Product) AvailableColors() []Color {
	var colors []Color
	for _, v := range p.Variants {
		if !v.InStock {
			continue
		}
		if slices.ContainsFunc(colors, func(c Color) bool { return c.Name == v.Color }) {
			continue
		}
		colors = append(colors, Color{Name: v.Color, Hex: v.ColorHex})
	}
	return colors
}

// VariantByOptions finds the in-stock variant with the given size and color.
func (p *Product) VariantByOptions(size, color string) (*Variant, bool) {
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Size == size && v.Color == color && v.InStock {
			return v, true
		}
	}
	return nil, false
}

// FormatPrice renders minor units as dollars, e.g. 2650 -> "$26.50".
func FormatPrice(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
