package model

import (
	"strings"
	"time"

	"order-bridge/internal/domain"
)

type SnippetType string

const (
	SnippetText  SnippetType = "text"
	SnippetImage SnippetType = "image"
)

// ChatSnippet is one text or image message from a watched sender.
// For images, Content holds the file name under the image directory.
type ChatSnippet struct {
	Time    time.Time   `json:"time"`
	Type    SnippetType `json:"type"`
	Content string      `json:"content"`
	Sender  string      `json:"sender"`
}

func NewTextSnippet(at time.Time, sender, text string) (ChatSnippet, error) {
	if strings.TrimSpace(text) == "" {
		return ChatSnippet{}, domain.ErrInvalidArgument
	}
	return ChatSnippet{Time: at, Type: SnippetText, Content: text, Sender: sender}, nil
}

func NewImageSnippet(at time.Time, sender, fileName string) (ChatSnippet, error) {
	if strings.TrimSpace(fileName) == "" {
		return ChatSnippet{}, domain.ErrInvalidArgument
	}
	return ChatSnippet{Time: at, Type: SnippetImage, Content: fileName, Sender: sender}, nil
}

// Batch is an ordered run of snippets collected between two idle flushes.
type Batch []ChatSnippet

func (b Batch) HasImage() bool {
	for _, s := range b {
		if s.Type == SnippetImage {
			return true
		}
	}
	return false
}

func (b Batch) ImageCount() int {
	n := 0
	for _, s := range b {
		if s.Type == SnippetImage {
			n++
		}
	}
	return n
}
