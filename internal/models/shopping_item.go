package models

import "strings"

// EntityShopping tags shopping list collections and queue entries.
const EntityShopping = "shopping"

// ShoppingItem is an entry on the shared household shopping list.
type ShoppingItem struct {
	BaseModel

	Name      string `gorm:"type:varchar(160);not null" json:"name"`
	Quantity  int    `gorm:"not null;default:1" json:"quantity"`
	Category  string `gorm:"type:varchar(60);index" json:"category,omitempty"`
	Purchased bool   `gorm:"not null;default:false;index" json:"purchased"`
}

// Normalise trims text fields and defaults the quantity.
func (i *ShoppingItem) Normalise() {
	i.Name = strings.TrimSpace(i.Name)
	i.Category = strings.ToLower(strings.TrimSpace(i.Category))
	if i.Quantity <= 0 {
		i.Quantity = 1
	}
}
