package chathistory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one JSON file per conversation under a directory. It is
// the fallback for deployments without MongoDB and for tests.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type chatFile struct {
	ChatID    string    `json:"chat_id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFileStore creates the directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chat directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(chatID string) string {
	return filepath.Join(s.dir, chatID+".json")
}

func (s *FileStore) read(chatID string) (*chatFile, error) {
	data, err := os.ReadFile(s.path(chatID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat %s: %w", chatID, err)
	}
	var doc chatFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse chat %s: %w", chatID, err)
	}
	return &doc, nil
}

// Append rewrites the chat file with the new turns added.
func (s *FileStore) Append(_ context.Context, chatID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(chatID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc == nil {
		doc = &chatFile{ChatID: chatID, CreatedAt: now}
	}
	doc.Turns = append(doc.Turns, turns...)
	doc.UpdatedAt = now

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chatID, err)
	}
	if err := os.WriteFile(s.path(chatID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write chat %s: %w", chatID, err)
	}
	return nil
}

// Load returns the chat's turns; a missing chat yields an empty slice.
func (s *FileStore) Load(_ context.Context, chatID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(chatID)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Turns, nil
}

// Recent lists conversations by last activity, newest first.
func (s *FileStore) Recent(_ context.Context, limit int) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || doc == nil || len(doc.Turns) == 0 {
			continue
		}
		summaries = append(summaries, Summary{
			ChatID:    doc.ChatID,
			Preview:   preview(doc.Turns),
			UpdatedAt: doc.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

var _ Store = (*FileStore)(nil)
