package model

import "time"

// FavoriteKind selects which catalog a saved favorite points into.
type FavoriteKind string

const (
	FavoritePalette     FavoriteKind = "palette"
	FavoriteFontPairing FavoriteKind = "font_pairing"
)

// Favorite is a premium user's saved reference to a named palette or font
// pairing. Name is matched against the front end's catalog, not validated here.
type Favorite struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Kind      FavoriteKind `json:"kind"`
	Name      string       `json:"name"`
	Notes     *string      `json:"notes,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
