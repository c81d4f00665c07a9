package models

import "time"

// Post records a thread published to the social platform.
//
// A Post is created once, atomically, only after every message in the
// thread has been posted. Partial publications never produce a Post.
type Post struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	JobID       string    `json:"job_id"`
	ThreadIndex int       `json:"thread_index"`
	RemoteIDs   []string  `json:"remote_ids"` // platform message ids, in thread order
	Permalink   string    `json:"permalink"`
	PostedAt    time.Time `json:"posted_at"`
}
