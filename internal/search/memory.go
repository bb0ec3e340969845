package search

import (
	"sort"
	"strings"
	"sync"
)

// Memory implements Searcher and Indexer with a plain in-process index. It
// serves as the fallback when Meilisearch is not configured or unreachable;
// the corpus is small enough that a substring scan is fine.
type Memory struct {
	mu    sync.RWMutex
	posts map[string]Record
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{posts: map[string]Record{}}
}

// Healthy always returns true; there is nothing to be down.
func (m *Memory) Healthy() bool {
	return true
}

// IndexPosts adds or updates posts in the index.
func (m *Memory) IndexPosts(posts []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return nil
}

// DeletePost removes a post from the index.
func (m *Memory) DeletePost(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}

// Search scans the index for case-insensitive substring matches over title,
// description, and tags. Title matches rank above the rest; ties break by
// title so results are stable.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, 0, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type ranked struct {
		result Result
		score  int
	}
	var matches []ranked
	for _, p := range m.posts {
		if q.Tag != "" && !hasTag(p.Tags, q.Tag) {
			continue
		}
		score := matchScore(p, text)
		if score == 0 {
			continue
		}
		matches = append(matches, ranked{
			result: Result{ID: p.ID, Title: p.Title, Snippet: p.Description, Series: p.Series},
			score:  score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].result.Title < matches[j].result.Title
	})

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-offset)
	for _, m := range matches[offset:end] {
		results = append(results, m.result)
	}
	return results, total, nil
}

func matchScore(p Record, text string) int {
	score := 0
	if strings.Contains(strings.ToLower(p.Title), text) {
		score += 3
	}
	if strings.Contains(strings.ToLower(p.Description), text) {
		score += 2
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), text) {
			score++
			break
		}
	}
	return score
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
