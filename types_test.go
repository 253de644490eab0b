package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinAndSplitTags(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		tags   []string
	}{
		{name: "empty", stored: "", tags: []string{}},
		{name: "single", stored: "Ana", tags: []string{"Ana"}},
		{name: "several", stored: "Ana,Beto,Caro", tags: []string{"Ana", "Beto", "Caro"}},
		{name: "spaces", stored: " Ana , Beto,", tags: []string{"Ana", "Beto"}},
		// Rows written before tags were comma separated.
		{name: "concatenated", stored: "AnaBeto", tags: []string{"AnaBeto"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tags, SplitTags(tt.stored))
		})
	}

	assert.Equal(t, "Ana,Beto", JoinTags([]string{" Ana", "", "Beto "}))
	assert.Equal(t, "", JoinTags(nil))
}

func TestPhotoHasTag(t *testing.T) {
	p := Photo{Tags: []string{"Ana", "Beto"}}

	assert.True(t, p.HasTag("Ana"))
	assert.False(t, p.HasTag("An"))
	assert.False(t, p.HasTag("ana"))
}
