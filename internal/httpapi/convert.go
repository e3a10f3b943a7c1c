package httpapi

import (
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// Protobuf responses use the well-known Struct/ListValue types with the
// same field names as the JSON encoding. Struct numbers are doubles, so time
// is sent as a decimal string to keep the full uint64 range.

func accessResponseValue(r types.AccessResponse) map[string]any {
	m := map[string]any{"outcome": string(r.Outcome)}
	if r.Name != "" {
		m["name"] = r.Name
	}
	if r.Reason != "" {
		m["reason"] = r.Reason
	}
	return m
}

func accessResponseToProto(r types.AccessResponse) (*structpb.Struct, error) {
	return structpb.NewStruct(accessResponseValue(r))
}

func historyToProto(entries []types.HistoryEntry) (*structpb.ListValue, error) {
	items := make([]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"time":     strconv.FormatUint(e.Time, 10),
			"token":    e.Token,
			"response": accessResponseValue(e.Response),
		})
	}
	return structpb.NewList(items)
}
