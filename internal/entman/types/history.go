package types

// HistoryEntry is one immutable record of an access attempt. Time is epoch
// seconds assigned by the gate when the attempt was recorded.
type HistoryEntry struct {
	Time     uint64         `json:"time"`
	Token    string         `json:"token"`
	Response AccessResponse `json:"response"`
}

// HistoryQuery filters the audit log. A nil field matches every entry on
// that dimension.
type HistoryQuery struct {
	TimeMin    *uint64
	TimeMax    *uint64
	Token      *string
	Name       *string
	Outcome    *Outcome
	OnlyLatest bool
}
