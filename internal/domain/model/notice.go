package model

import "time"

// NoticeKind selects which reporting call a Notice is delivered through.
type NoticeKind string

// Notice kinds.
const (
	// NoticeUpdate refreshes the live summary for a window key.
	NoticeUpdate NoticeKind = "update"
	// NoticePublish posts a final summary.
	NoticePublish NoticeKind = "publish"
)

// Notice is a summary waiting to be delivered to the reporting channel.
type Notice struct {
	Kind      NoticeKind
	Key       string
	Text      string
	CreatedAt time.Time
}
