package main

import "strings"

// TagSeparator joins the tags of a photo into the single tags column.
const TagSeparator = ","

type User struct {
	Name string `json:"name"`
}

type Photo struct {
	Filename   string   `json:"filename"`
	UploadedBy string   `json:"uploaded_by"`
	Tags       []string `json:"tags"`
}

// RankEntry is one row of a ranking: a name and how often it was counted.
type RankEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type GalleryItem struct {
	Photo
	Tagged   bool `json:"tagged"`
	Uploaded bool `json:"uploaded"`
}

// JoinTags renders tags the way they are kept in the tags column.
func JoinTags(tags []string) string {
	return strings.Join(CleanTags(tags), TagSeparator)
}

// SplitTags parses a stored tags column. Rows written without a separator
// come back as a single tag.
func SplitTags(s string) []string {
	return CleanTags(strings.Split(s, TagSeparator))
}

// CleanTags trims every tag and drops the empty ones.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}

	return out
}

func (p Photo) HasTag(name string) bool {
	for _, tag := range p.Tags {
		if tag == name {
			return true
		}
	}

	return false
}
