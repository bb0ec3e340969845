package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index. Writes go to both so the fallback stays warm.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, memory *Memory) *Service {
	if memory == nil {
		memory = NewMemory()
	}
	return &Service{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise uses the in-memory index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to memory: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: memory index error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPosts indexes posts into the memory index synchronously and into
// Meilisearch fire-and-forget.
func (s *Service) IndexPosts(posts []Record) {
	if len(posts) == 0 {
		return
	}
	if err := s.memory.IndexPosts(posts); err != nil {
		log.Printf("search: memory index posts: %v", err)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPosts(posts); err != nil {
			log.Printf("search: index %d posts: %v", len(posts), err)
		}
	}()
}

// DeletePost removes a post from both indexes (fire-and-forget to Meilisearch).
func (s *Service) DeletePost(id string) {
	if err := s.memory.DeletePost(id); err != nil {
		log.Printf("search: memory delete post %s: %v", id, err)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePost(id); err != nil {
			log.Printf("search: delete post %s: %v", id, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
