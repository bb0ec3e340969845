package block

// ListGroup is a run of consecutive sibling list items of the same type,
// coalesced so the renderer can emit a single list container.
type ListGroup struct {
	ItemType Type
	Items    []Block
}

// RenderUnit is what the renderer consumes: either a single block or a
// coalesced list group. Exactly one field is set.
type RenderUnit struct {
	Block *Block
	Group *ListGroup
}

// GroupSiblings rewrites an ordered sibling list into render units in a
// single linear scan. Consecutive list items of the same type join one
// group; a list item of the other type closes the group and opens a new
// one; any non-list block closes the open group. Children are never
// inspected — nested lists are grouped again by the renderer's recursion.
// Flattening the result reproduces the input sequence exactly.
func GroupSiblings(blocks []Block) []RenderUnit {
	units := make([]RenderUnit, 0, len(blocks))
	var open *ListGroup

	flush := func() {
		if open != nil {
			units = append(units, RenderUnit{Group: open})
			open = nil
		}
	}

	for i := range blocks {
		b := blocks[i]
		if b.Type == TypeBulletedItem || b.Type == TypeNumberedItem {
			if open != nil && open.ItemType == b.Type {
				open.Items = append(open.Items, b)
				continue
			}
			flush()
			open = &ListGroup{ItemType: b.Type, Items: []Block{b}}
			continue
		}
		flush()
		units = append(units, RenderUnit{Block: &blocks[i]})
	}
	flush()
	return units
}
