// Package transcript は会話ターンの追記専用監査ログ（セッションごとにJSON Linesファイル1つ）
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Nyukimin/toolrouter/internal/domain/conversation"
)

// ErrInvalidID はファイル名に使えないIDのエラー
var ErrInvalidID = errors.New("invalid transcript id")

const maxLineBytes = 1 << 20

// JSONRepository は <baseDir>/<id>.jsonl にターンを追記する
// 稼働中のセッションへ読み戻すことはない
type JSONRepository struct {
	baseDir string
	mu      sync.Mutex
}

// NewJSONRepository は新しいJSONRepositoryを作成
// ディレクトリは初回 Append 時に作成
func NewJSONRepository(baseDir string) *JSONRepository {
	return &JSONRepository{baseDir: baseDir}
}

// Append はセッションのログ末尾にターンを追記
func (r *JSONRepository) Append(ctx context.Context, id string, turns ...conversation.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create transcript dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, t := range turns {
		if err := enc.Encode(t); err != nil {
			f.Close()
			return fmt.Errorf("failed to write transcript: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// Load はセッションのログ全体を読み込む
// ファイルがなければ conversation.ErrNotFound
func (r *JSONRepository) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("transcript %s: %w", id, conversation.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}
	defer f.Close()

	var turns []conversation.Turn
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for line := 1; sc.Scan(); line++ {
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var t conversation.Turn
		if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
			return nil, fmt.Errorf("transcript %s line %d: %w", id, line, err)
		}
		turns = append(turns, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	conv := conversation.New(id)
	if len(turns) > 0 {
		conv = conversation.Restore(id, turns[0].CreatedAt, turns[len(turns)-1].CreatedAt, turns)
	}
	return conv, nil
}

// Delete はセッションのログを削除（存在しない場合はエラーとしない）
func (r *JSONRepository) Delete(_ context.Context, id string) error {
	path, err := r.path(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript file: %w", err)
	}
	return nil
}

func (r *JSONRepository) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(r.baseDir, id+".jsonl"), nil
}
