package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Record is one deployment snapshot: what was deployed, where, and with
// which environment keys (values are never written to the journal).
type Record struct {
	ProjectID    string    `json:"projectId"`
	ProjectName  string    `json:"projectName"`
	DeploymentID string    `json:"deploymentId"`
	URL          string    `json:"url"`
	Target       string    `json:"target"`
	EnvKeys      []string  `json:"envKeys,omitempty"`
	DeployedAt   time.Time `json:"deployedAt"`
}

// Entry is a journal entry as read back from history.
type Entry struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Record    Record    `json:"record"`
}

// Journal keeps deployment snapshots in a local git repository, one commit
// per deployment, so setup runs leave an auditable trail.
type Journal struct {
	dir string
	mu  sync.Mutex
}

// NewJournal creates a journal rooted at dir. The repository is initialized
// lazily on first record.
func NewJournal(dir string) *Journal {
	return &Journal{dir: dir}
}

const recordFile = "deploy.json"

func (j *Journal) ensureRepo() (*git.Repository, error) {
	if _, err := os.Stat(filepath.Join(j.dir, ".git")); err == nil {
		repo, err := git.PlainOpen(j.dir)
		if err != nil {
			return nil, fmt.Errorf("open journal repo: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat journal dir: %w", err)
	}

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	repo, err := git.PlainInit(j.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init journal repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

// Append commits a deployment record to the journal and returns its short
// commit hash.
func (j *Journal) Append(record Record) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	repo, err := j.ensureRepo()
	if err != nil {
		return "", err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	if record.DeployedAt.IsZero() {
		record.DeployedAt = time.Now()
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.dir, recordFile), append(payload, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	if _, err := worktree.Add(recordFile); err != nil {
		return "", fmt.Errorf("git add record: %w", err)
	}

	message := fmt.Sprintf("Deploy %s to %s (%s)", record.ProjectName, record.Target, record.DeploymentID)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  "prism-setup",
			Email: "setup@tuum-prism.local",
			When:  record.DeployedAt,
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit record: %w", err)
	}
	return hash.String()[:7], nil
}

// History lists the most recent journal entries, newest first. limit <= 0
// means all entries.
func (j *Journal) History(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	repo, err := git.PlainOpen(j.dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open journal repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	entries := make([]Entry, 0, limit)
	count := 0
	err = iter.ForEach(func(commit *object.Commit) error {
		entry := Entry{
			Hash:      commit.Hash.String()[:7],
			Message:   commit.Message,
			CreatedAt: commit.Author.When,
		}
		if record, err := readRecord(commit); err == nil {
			entry.Record = record
		}
		entries = append(entries, entry)
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

func readRecord(commit *object.Commit) (Record, error) {
	file, err := commit.File(recordFile)
	if err != nil {
		return Record{}, fmt.Errorf("load record from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Record{}, fmt.Errorf("open record reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Record{}, fmt.Errorf("read record bytes: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}
