// Package images replaces time-limited CMS image URLs with permanent ones
// hosted on a blob storage backend. The pass is pure with respect to its
// input tree and degrades per image: a failed resolution keeps the original
// URL and never fails the document.
package images

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
	"golang.org/x/sync/errgroup"
)

// imageFanout caps concurrent downloads/uploads per document.
const imageFanout = 4

// Storage is the blob backend images are persisted to. Uploads under the
// same key are safe to repeat; the key fully determines the public URL.
type Storage interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
	Exists(ctx context.Context, url string) (bool, error)
	Delete(ctx context.Context, url string) error
	URL(key string) string
}

// ByteFetcher retrieves the raw bytes behind a source URL.
type ByteFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Processor rewrites the image URLs of a block tree. Implementations return
// a new tree and leave the input untouched.
type Processor interface {
	Process(ctx context.Context, blocks []block.Block, postID string) []block.Block
}

// contentTypes maps file extensions to MIME types for upload.
var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"avif": "image/avif",
}

// Service is the storage-backed Processor.
type Service struct {
	storage Storage
	fetcher ByteFetcher
}

// NewService builds a Processor that persists images to the given storage.
func NewService(storage Storage, fetcher ByteFetcher) *Service {
	return &Service{storage: storage, fetcher: fetcher}
}

// Process finds every image block in the tree, materializes a permanent URL
// for each, and returns a rebuilt tree with only those URLs replaced.
// Resolution failures are logged and leave the affected image unchanged.
func (s *Service) Process(ctx context.Context, blocks []block.Block, postID string) []block.Block {
	targets := collectImages(blocks)
	if len(targets) == 0 {
		return blocks
	}
	log.Printf("images: processing %d images for post %s", len(targets), postID)

	var mu sync.Mutex
	resolved := make(map[string]string, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageFanout)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			source, ok := target.ImageURL()
			if !ok {
				return nil
			}
			permanent, err := s.ensurePermanentURL(gctx, source, postID, target.ID)
			if err != nil {
				log.Printf("images: resolve %s failed, keeping original URL: %v", target.ID, err)
				return nil
			}
			mu.Lock()
			resolved[target.ID] = permanent
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures degrade per image

	if len(resolved) == 0 {
		return blocks
	}
	out, _ := rewriteImageURLs(blocks, resolved)
	return out
}

// ensurePermanentURL returns a stable URL for one image. The storage key is
// fully derived from the post and block ids, so reprocessing the same
// document lands on the same key: if the object is already there the upload
// is skipped, and repeating it would overwrite with identical content
// anyway.
func (s *Service) ensurePermanentURL(ctx context.Context, sourceURL, postID, blockID string) (string, error) {
	ext := extension(sourceURL)
	key := fmt.Sprintf("images/%s/%s.%s", postID, blockID, ext)

	permanent := s.storage.URL(key)
	if ok, err := s.storage.Exists(ctx, permanent); err == nil && ok {
		return permanent, nil
	}

	data, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	contentType, ok := contentTypes[ext]
	if !ok {
		contentType = "application/octet-stream"
	}
	uploaded, err := s.storage.Upload(ctx, data, key, contentType)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return uploaded, nil
}

// collectImages gathers every image block depth-first in document order.
func collectImages(blocks []block.Block) []block.Block {
	var found []block.Block
	for _, b := range blocks {
		if b.Type == block.TypeImage {
			found = append(found, b)
		}
		if len(b.Children) > 0 {
			found = append(found, collectImages(b.Children)...)
		}
	}
	return found
}

// rewriteImageURLs rebuilds the tree with the resolved URLs swapped in.
// Only nodes on a path to a changed image are cloned; untouched siblings
// and subtrees are shared with the input.
func rewriteImageURLs(blocks []block.Block, resolved map[string]string) ([]block.Block, bool) {
	var out []block.Block
	changed := false
	for i := range blocks {
		b := blocks[i]
		nodeChanged := false

		if b.Type == block.TypeImage && b.Image != nil {
			if permanent, ok := resolved[b.ID]; ok && permanent != b.Image.URL {
				img := *b.Image
				img.Kind = block.ImageExternal
				img.URL = permanent
				img.ExpiresAt = time.Time{}
				b.Image = &img
				nodeChanged = true
			}
		}
		if len(b.Children) > 0 {
			if kids, kidsChanged := rewriteImageURLs(b.Children, resolved); kidsChanged {
				b.Children = kids
				nodeChanged = true
			}
		}

		if nodeChanged {
			if !changed {
				out = make([]block.Block, len(blocks))
				copy(out, blocks)
				changed = true
			}
			out[i] = b
		}
	}
	if !changed {
		return blocks, false
	}
	return out, true
}

// extension pulls the file extension out of a URL path, defaulting to png
// when there is none worth trusting.
func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "png"
	}
	path := u.Path
	dot := strings.LastIndex(path, ".")
	if dot < 0 || dot == len(path)-1 {
		return "png"
	}
	ext := strings.ToLower(path[dot+1:])
	for _, r := range ext {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return "png"
		}
	}
	return ext
}

// Passthrough is the Processor used when no storage is configured: the
// pipeline still runs, images just keep their source URLs.
type Passthrough struct{}

func (Passthrough) Process(_ context.Context, blocks []block.Block, _ string) []block.Block {
	return blocks
}
