package records

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps one user document per line of a JSON lines file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create store file: %w", err)
	}
	defer file.Close()

	return &FileStore{
		path: path,
	}, nil
}

func (s *FileStore) GetRecord(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, err := s.load()
	if err != nil {
		return nil, err
	}

	key := Key(email)
	for _, user := range users {
		if Key(user.Email) == key {
			return user, nil
		}
	}

	return nil, nil
}

func (s *FileStore) PutRecord(_ context.Context, email string, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}

	key := Key(email)
	replaced := false

	for i := range users {
		if Key(users[i].Email) == key {
			users[i] = user
			replaced = true
			break
		}
	}

	if !replaced {
		users = append(users, user)
	}

	return s.save(users)
}

func (s *FileStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load()
}

func (s *FileStore) load() ([]*User, error) {
	file, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}
	defer file.Close()

	users := make([]*User, 0)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var user User
		if err = json.Unmarshal([]byte(line), &user); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line: %w", err)
		}

		users = append(users, &user)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading store file: %w", err)
	}

	return users, nil
}

// save writes a temporary file and renames it over the store, so readers never see a half written file.
func (s *FileStore) save(users []*User) error {
	tmpPath := s.path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create/open store file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	for _, user := range users {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		if _, err = writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write user: %w", err)
		}
	}

	if err = writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close store file: %w", err)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	return nil
}
