package notion

import (
	"context"
	"fmt"

	"github.com/Sharknia/tuum-prism/internal/block"
	"golang.org/x/sync/errgroup"
)

// subtreeFanout caps how many sibling subtrees hydrate concurrently. The
// cap is per recursion level, which keeps the total well below the socket
// limit even for deeply nested documents.
const subtreeFanout = 8

// FetchTree returns the fully hydrated children of the given block, in
// document order. Pagination is followed until the API stops reporting
// more pages; every child flagged as having children gets its subtree
// fetched recursively before the tree is returned. Sibling subtrees are
// fetched concurrently but reassembled in their original positions, so
// completion order never changes document order. Any listing failure fails
// the whole fetch.
func (c *Client) FetchTree(ctx context.Context, rootID string) ([]block.Block, error) {
	var blocks []block.Block
	cursor := ""
	for {
		page, err := c.ListChildren(ctx, rootID, cursor)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", rootID, err)
		}

		hydrated, err := c.hydrateChildren(ctx, page.Blocks)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, hydrated...)

		if !page.HasMore {
			return blocks, nil
		}
		cursor = page.NextCursor
	}
}

// hydrateChildren fetches the subtree of every block that reports children,
// writing each result back to its own index.
func (c *Client) hydrateChildren(ctx context.Context, blocks []block.Block) ([]block.Block, error) {
	out := make([]block.Block, len(blocks))
	copy(out, blocks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(subtreeFanout)
	for i := range out {
		if !out[i].HasChildren {
			continue
		}
		i := i
		g.Go(func() error {
			children, err := c.FetchTree(ctx, out[i].ID)
			if err != nil {
				return err
			}
			out[i].Children = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
