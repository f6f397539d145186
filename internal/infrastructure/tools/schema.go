package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// Schema は引数構造体のJSONスキーマを tool.Descriptor 用のマップに変換
// 変換できなければ nil
func Schema(v interface{}) map[string]interface{} {
	s := reflector.Reflect(v)
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	delete(out, "$schema")
	return out
}
