package conversation

import (
	"errors"
	"time"
)

// ErrNotFound はトランスクリプトが存在しない場合のエラー
var ErrNotFound = errors.New("conversation not found")

// DefaultWindow は分類器に渡す直近ターン数
const DefaultWindow = 10

// HistoryKey は直近ターンを分類器コンテキストに載せるキー
const HistoryKey = "conversation_history"

// Role はターンの発言者
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn は会話ログの1エントリ
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn は現在時刻付きのターンを作成
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, CreatedAt: time.Now()}
}

// Conversation は1セッション分の追記専用ターンログ
// 並行アクセス非対応（所有セッションが直列化する）
type Conversation struct {
	id        string
	turns     []Turn
	createdAt time.Time
	updatedAt time.Time
}

// New は空の会話を作成
func New(id string) *Conversation {
	now := time.Now()
	return &Conversation{
		id:        id,
		turns:     make([]Turn, 0),
		createdAt: now,
		updatedAt: now,
	}
}

// Restore は保存済みトランスクリプトから会話を復元（タイムスタンプを保持）
func Restore(id string, createdAt, updatedAt time.Time, turns []Turn) *Conversation {
	c := &Conversation{
		id:        id,
		turns:     make([]Turn, len(turns)),
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
	copy(c.turns, turns)
	return c
}

// ID は会話IDを返す
func (c *Conversation) ID() string {
	return c.id
}

// CreatedAt は作成時刻を返す
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt は最終追記時刻を返す
func (c *Conversation) UpdatedAt() time.Time {
	return c.updatedAt
}

// Append はターンを末尾に追加
func (c *Conversation) Append(t Turn) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	c.turns = append(c.turns, t)
	c.updatedAt = t.CreatedAt
}

// RecentWindow は直近n件のターンを時系列順のコピーで返す
// ログがn件未満なら全件
func (c *Conversation) RecentWindow(n int) []Turn {
	if n <= 0 {
		return []Turn{}
	}
	start := 0
	if len(c.turns) > n {
		start = len(c.turns) - n
	}
	out := make([]Turn, len(c.turns)-start)
	copy(out, c.turns[start:])
	return out
}

// Turns は全ログのコピーを返す
func (c *Conversation) Turns() []Turn {
	return c.RecentWindow(len(c.turns))
}

// Len はターン数を返す
func (c *Conversation) Len() int {
	return len(c.turns)
}
