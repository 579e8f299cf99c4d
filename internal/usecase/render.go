package usecase

import (
	"fmt"
	"strings"

	"NewsDigest/internal/domain"
)

// unavailable replaces the body of an entry whose processing failed.
const unavailable = "_Summary unavailable for this story._"

// RenderMarkdown builds the published document. Every entry appears in rank order,
// failed ones with a placeholder body.
func RenderMarkdown(digest domain.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Digest %s\n", digest.Date)

	if len(digest.Entries) == 0 {
		b.WriteString("\nNo stories today.\n")
		return b.String()
	}

	for _, entry := range digest.Entries {
		b.WriteString("\n")
		renderEntry(&b, entry)
	}
	return b.String()
}

func renderEntry(b *strings.Builder, e domain.DigestEntry) {
	heading := e.TranslatedTitle
	if heading == "" {
		heading = e.Title
	}
	if heading == "" {
		heading = "(untitled)"
	}
	fmt.Fprintf(b, "## %d. %s\n\n", e.Rank+1, heading)
	if e.TranslatedTitle != "" && e.Title != "" && e.TranslatedTitle != e.Title {
		fmt.Fprintf(b, "_%s_\n\n", e.Title)
	}

	var meta []string
	if e.Score > 0 {
		meta = append(meta, fmt.Sprintf("%d points", e.Score))
	}
	if e.CommentCount > 0 {
		meta = append(meta, fmt.Sprintf("%d comments", e.CommentCount))
	}
	if e.Author != "" {
		meta = append(meta, "by "+e.Author)
	}
	if len(meta) > 0 {
		b.WriteString(strings.Join(meta, " | ") + "\n\n")
	}

	if e.Failed {
		b.WriteString(unavailable + "\n\n")
	} else {
		if e.Summary != "" {
			b.WriteString(e.Summary + "\n\n")
		}
		if e.CommentDigest != "" {
			for _, line := range strings.Split(e.CommentDigest, "\n") {
				b.WriteString("> " + line + "\n")
			}
			b.WriteString("\n")
		}
	}

	if e.URL != "" {
		fmt.Fprintf(b, "- Link: %s\n", e.URL)
	}
	if e.DiscussionURL != "" && e.DiscussionURL != e.URL {
		fmt.Fprintf(b, "- Discussion: %s\n", e.DiscussionURL)
	}
}
