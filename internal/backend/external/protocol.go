package external

import (
	"encoding/json"
)

// Messages are single JSON objects, one per line.
//
//	checker -> prosa  {"type":"hello","name":"...","version":"...","disable_rules":true}
//	prosa -> checker  {"id":1,"type":"check","text":"...","language":"de-DE","disabled_rules":[...]}
//	checker -> prosa  {"id":1,"result":{"matches":[...]}}  or  {"id":1,"error":"..."}
//
// result has the shape of a LanguageTool /v2/check response.

type hello struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	DisableRules bool   `json:"disable_rules"`
}

type request struct {
	ID            uint64   `json:"id"`
	Type          string   `json:"type"`
	Text          string   `json:"text"`
	Language      string   `json:"language"`
	DisabledRules []string `json:"disabled_rules,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
