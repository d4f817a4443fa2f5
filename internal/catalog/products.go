package catalog

import "strings"

func whiteVariants(prefix string, sizes []string, partnerIDs []string) []Variant {
	vs := make([]Variant, len(sizes))
	for i, size := range sizes {
		vs[i] = Variant{
			ID:               prefix + "-" + strings.ToLower(size),
			Size:             size,
			Color:            "White",
			ColorHex:         "#ffffff",
			PartnerVariantID: partnerIDs[i],
			InStock:          true,
		}
	}
	return vs
}

var defaultProducts = []Product{
	{
		ID:          "womens-relaxed-tee",
		Slug:        "womens-relaxed-tee",
		Name:        "Women's Relaxed T-Shirt",
		Description: "A comfortable, relaxed fit t-shirt featuring the ThemeForseen design.",
		Price:       2000,
		Images:      []string{"/products/womens-relaxed-t-shirt-white-front.png"},
		Category:    CategoryTShirt,
		Variants: whiteVariants("womens-relaxed-tee",
			[]string{"S", "M", "L", "XL", "2XL"},
			[]string{"5096077610", "5096077618", "5096077626", "5096077634", "5096077642"}),
	},
	{
		ID:          "toddler-tee",
		Slug:        "toddler-tee",
		Name:        "Toddler Short Sleeve Tee",
		Description: "A cute and comfortable t-shirt for the little ones.",
		Price:       2000,
		Images:      []string{"/products/toddler-tee-white-front.png"},
		Category:    CategoryTShirt,
		Variants: whiteVariants("toddler-tee",
			[]string{"2T", "3T", "4T", "5T"},
			[]string{"5096077495", "5096077496", "5096077497", "5096077498"}),
	},
	{
		ID:          "premium-zip-hoodie",
		Slug:        "premium-zip-hoodie",
		Name:        "Premium Full Zip Hoodie",
		Description: "A cozy premium full zip hoodie for cooler weather.",
		Price:       3500,
		Images:      []string{"/products/premium-full-zip-hoodie.png"},
		Category:    CategoryHoodie,
		Variants: whiteVariants("premium-zip-hoodie",
			[]string{"S", "M", "L", "XL"},
			[]string{"5096077282", "5096077286", "5096077295", "5096077304"}),
	},
	{
		ID:          "unisex-hoodie",
		Slug:        "unisex-hoodie",
		Name:        "Unisex Hoodie",
		Description: "A classic unisex hoodie. Available in Black and White.",
		Price:       3500,
		Images: []string{
			"/products/unisex-hoodie-black-front.png",
			"/products/unisex-hoodie-white-front.png",
		},
		Category: CategoryHoodie,
		Variants: []Variant{
			{ID: "unisex-hoodie-black-s", Size: "S", Color: "Black", ColorHex: "#1a1a1a", PartnerVariantID: "5096072369", InStock: true},
			{ID: "unisex-hoodie-black-m", Size: "M", Color: "Black", ColorHex: "#1a1a1a", PartnerVariantID: "5096072370", InStock: true},
			{ID: "unisex-hoodie-black-l", Size: "L", Color: "Black", ColorHex: "#1a1a1a", PartnerVariantID: "5096072371", InStock: true},
			{ID: "unisex-hoodie-black-xl", Size: "XL", Color: "Black", ColorHex: "#1a1a1a", PartnerVariantID: "5096072372", InStock: true},
			{ID: "unisex-hoodie-white-s", Size: "S", Color: "White", ColorHex: "#ffffff", PartnerVariantID: "5096072374", InStock: true},
			{ID: "unisex-hoodie-white-m", Size: "M", Color: "White", ColorHex: "#ffffff", PartnerVariantID: "5096072375", InStock: true},
			{ID: "unisex-hoodie-white-l", Size: "L", Color: "White", ColorHex: "#ffffff", PartnerVariantID: "5096072376", InStock: true},
			{ID: "unisex-hoodie-white-xl", Size: "XL", Color: "White", ColorHex: "#ffffff", PartnerVariantID: "5096072377", InStock: true},
		},
	},
	{
		ID:          "palette-mug",
		Slug:        "palette-mug",
		Name:        "Palette Mug",
		Description: "An 11oz ceramic mug printed with a swatch strip.",
		Price:       1500,
		Images:      []string{"/products/palette-mug-white.png"},
		Category:    CategoryMug,
		Variants: []Variant{
			{ID: "palette-mug-11oz", Size: "11oz", Color: "White", ColorHex: "#ffffff", PartnerVariantID: "5096078120", InStock: true},
			{ID: "palette-mug-15oz", Size: "15oz", Color: "White", ColorHex: "#ffffff", PartnerVariantID: "5096078121", InStock: false},
		},
	},
}
