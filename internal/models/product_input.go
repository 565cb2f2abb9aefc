package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ProductInput is a partial product as sent by clients. Nil fields were not
// supplied. Read-only fields have no counterpart here and are dropped on decode.
type ProductInput struct {
	Name        *string          `json:"name" validate:"omitnil,notblank,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitnil,gte=0"`
	Stock       *int             `json:"stock" validate:"omitnil,gte=0,lte=2147483647"`
	IsAvailable *bool            `json:"is_available"`

	// DecodeErrors holds per-field messages for values that could not be
	// decoded. Those fields are left nil.
	DecodeErrors map[string][]string `json:"-" validate:"-"`
}

// TrimName strips surrounding whitespace from a supplied name.
func (in *ProductInput) TrimName() {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
}

// Apply copies the supplied fields onto p.
func (in ProductInput) Apply(p *Product) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.IsAvailable != nil {
		p.IsAvailable = *in.IsAvailable
	}
}
