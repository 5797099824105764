package cart

import (
	"fmt"
	"strings"
)

const (
	MaxLines    = 50
	MaxQuantity = 99
)

// Line is a single cart entry.
type Line struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	VariantID string `json:"variantId,omitempty" validate:"omitempty,max=128"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

// Snapshot is the ordered cart carried in the cart cookie.
type Snapshot struct {
	Lines []Line `json:"lines"`
}

// Empty returns a snapshot with a non-nil line slice so it encodes as [].
func Empty() Snapshot {
	return Snapshot{Lines: []Line{}}
}

// Validate checks line count, quantities and product ids.
func (s Snapshot) Validate() error {
	if len(s.Lines) == 0 {
		return fmt.Errorf("cart must contain at least one line")
	}
	if len(s.Lines) > MaxLines {
		return fmt.Errorf("cart may contain at most %d lines", MaxLines)
	}
	for i, line := range s.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("line %d: productId is required", i)
		}
		if line.Quantity < 1 || line.Quantity > MaxQuantity {
			return fmt.Errorf("line %d: quantity must be between 1 and %d", i, MaxQuantity)
		}
	}
	return nil
}

// Normalize trims ids and merges repeated product/variant pairs, keeping
// first-seen order. Merged quantities are capped at MaxQuantity.
func (s Snapshot) Normalize() Snapshot {
	out := Snapshot{Lines: make([]Line, 0, len(s.Lines))}
	index := make(map[string]int, len(s.Lines))
	for _, line := range s.Lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		line.VariantID = strings.TrimSpace(line.VariantID)
		key := line.ProductID + "\x00" + line.VariantID
		if i, ok := index[key]; ok {
			out.Lines[i].Quantity = min(out.Lines[i].Quantity+line.Quantity, MaxQuantity)
			continue
		}
		index[key] = len(out.Lines)
		out.Lines = append(out.Lines, line)
	}
	return out
}
