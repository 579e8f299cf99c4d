package domain

import "time"

// StoryRef identifies a candidate story at its upstream source.
type StoryRef struct {
	Source string
	ID     string
}

func (r StoryRef) String() string {
	return r.Source + ":" + r.ID
}

// DiscussionURL links to the story page at its source, empty for unknown sources.
func (r StoryRef) DiscussionURL() string {
	switch r.Source {
	case "hackernews":
		return "https://news.ycombinator.com/item?id=" + r.ID
	case "arxiv":
		return "https://arxiv.org/abs/" + r.ID
	}
	return ""
}

// Story is the raw entry fetched from a provider (Hacker News item, arXiv abstract, ...).
type Story struct {
	Ref          StoryRef
	Title        string
	URL          string
	Text         string
	Author       string
	Score        int
	CommentCount int
	Comments     []string
	PublishedAt  time.Time
}

// Message is a single chat turn sent to a language model.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)
