package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID は処理したクエリの識別子（形式: YYYYMMDD-HHMMSS-xxxxxxxx）
type ID struct {
	value string
}

// NewID は現在時刻で新しいIDを生成
func NewID() ID {
	return NewIDAt(time.Now())
}

// NewIDAt は指定時刻でIDを生成
func NewIDAt(t time.Time) ID {
	return ID{value: fmt.Sprintf("%s-%s", t.Format("20060102-150405"), uuid.New().String()[:8])}
}

// ParseID は既存のID文字列から復元
func ParseID(s string) ID {
	return ID{value: s}
}

func (id ID) String() string {
	return id.value
}

// IsZero は未設定か判定
func (id ID) IsZero() bool {
	return id.value == ""
}
