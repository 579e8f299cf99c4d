package domain

// DigestEntry is one rendered line-up position of the daily document.
type DigestEntry struct {
	Rank            int
	Title           string
	TranslatedTitle string
	URL             string
	DiscussionURL   string
	Author          string
	Score           int
	CommentCount    int
	Summary         string
	CommentDigest   string
	Failed          bool
}

// Digest is the aggregated output of a task.
type Digest struct {
	Date     string
	Entries  []DigestEntry
	Document string
}
