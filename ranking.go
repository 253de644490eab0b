package main

import "sort"

// UploadRanking counts photos per uploader, highest first. Ties keep the
// order in which uploaders first appear in photos.
func UploadRanking(photos []Photo) []RankEntry {
	var c counter
	for _, p := range photos {
		c.add(p.UploadedBy)
	}

	return c.ranking()
}

// AppearanceRanking counts how many photos each tag appears in, highest
// first, with the same tie order as UploadRanking. Empty tags are ignored.
func AppearanceRanking(photos []Photo) []RankEntry {
	var c counter
	for _, p := range photos {
		for _, tag := range CleanTags(p.Tags) {
			c.add(tag)
		}
	}

	return c.ranking()
}

type counter struct {
	index   map[string]int
	entries []RankEntry
}

func (c *counter) add(name string) {
	if c.index == nil {
		c.index = make(map[string]int)
	}

	i, ok := c.index[name]
	if !ok {
		i = len(c.entries)
		c.index[name] = i
		c.entries = append(c.entries, RankEntry{Name: name})
	}

	c.entries[i].Count++
}

func (c *counter) ranking() []RankEntry {
	out := make([]RankEntry, len(c.entries))
	copy(out, c.entries)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	return out
}
