package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/models"
)

const (
	StateFileName       = "state.json"
	LeaderboardFileName = "leaderboard.json"
)

// stateDocument is the on-disk cursor. The block number is a decimal string.
type stateDocument struct {
	LastProcessedBlock json.RawMessage `json:"lastProcessedBlock"`
}

// FileStore keeps state.json and leaderboard.json in a directory.
// The two files are replaced independently, so a crash between them can
// leave a leaderboard that is ahead of the cursor.
type FileStore struct {
	dir    string
	logger logger.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "./data"
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: log}, nil
}

func (s *FileStore) StatePath() string       { return filepath.Join(s.dir, StateFileName) }
func (s *FileStore) LeaderboardPath() string { return filepath.Join(s.dir, LeaderboardFileName) }

func (s *FileStore) LoadCursor(_ context.Context) (uint64, bool, error) {
	raw, ok, err := s.read(s.StatePath())
	if err != nil || !ok {
		return 0, false, err
	}

	var doc stateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Notice("Ignoring malformed %s: %v", StateFileName, err)
		return 0, false, nil
	}
	cursor, err := parseBlock(doc.LastProcessedBlock)
	if err != nil {
		s.logger.Notice("Ignoring malformed %s: %v", StateFileName, err)
		return 0, false, nil
	}
	return cursor, true, nil
}

// parseBlock accepts the decimal string form and, leniently, a bare JSON number
func parseBlock(raw json.RawMessage) (uint64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, errors.New("lastProcessedBlock missing")
	}
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		text = str
	}
	return strconv.ParseUint(text, 10, 64)
}

func (s *FileStore) LoadLeaderboard(_ context.Context) (models.Leaderboard, error) {
	lb := models.Leaderboard{}
	raw, ok, err := s.read(s.LeaderboardPath())
	if err != nil || !ok {
		return lb, err
	}

	var stored map[string]uint64
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Notice("Ignoring malformed %s: %v", LeaderboardFileName, err)
		return lb, nil
	}
	for addr, count := range stored {
		lb.Increment(addr, count)
	}
	return lb, nil
}

func (s *FileStore) SaveLeaderboard(_ context.Context, lb models.Leaderboard) error {
	if lb == nil {
		lb = models.Leaderboard{}
	}
	data, err := json.MarshalIndent(lb, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.LeaderboardPath(), data)
}

func (s *FileStore) SaveCursor(_ context.Context, cursor uint64) error {
	data, err := json.Marshal(map[string]string{"lastProcessedBlock": strconv.FormatUint(cursor, 10)})
	if err != nil {
		return err
	}
	return writeFileAtomic(s.StatePath(), data)
}

func (s *FileStore) Close() error { return nil }

// read returns ok=false when the file does not exist
func (s *FileStore) read(path string) ([]byte, bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Notice("Cannot read %s, starting from defaults: %v", path, err)
		return nil, false, nil
	}
	return raw, true, nil
}

// writeFileAtomic replaces path with data via a temp file in the same directory
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
