package domain

import "time"

// Item is a piece of remote content as returned by the content source.
type Item struct {
	CreatedAt  time.Time
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	Permalink  string
}

// Container is the post a comment lives under, used as prompt context.
type Container struct {
	ID          string
	Caption     string
	Attachments []Attachment
}

type Attachment struct {
	MediaType   string
	Title       string
	Description string
	URL         string
}
