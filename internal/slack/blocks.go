// Package slack formats tag updates as Block Kit messages and posts them to an incoming webhook.
package slack

import (
	"fmt"
	"strings"

	"feed_notifier/internal/model"
)

// MaxBlocks is the largest number of blocks Slack accepts in one message.
const MaxBlocks = 50

// Block kinds used in update messages.
const (
	BlockSection = "section"
	BlockDivider = "divider"
	textMrkdwn   = "mrkdwn"
)

// Block is a Block Kit layout block.
type Block struct {
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
}

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Payload is the JSON document posted to the webhook.
type Payload struct {
	Channel  string  `json:"channel"`
	Username string  `json:"username"`
	Blocks   []Block `json:"blocks"`
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// A bare "|" would end the link target and start its label.
var linkEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "|", "%7C")

func section(text string) Block {
	return Block{Type: BlockSection, Text: &Text{Type: textMrkdwn, Text: text}}
}

func divider() Block {
	return Block{Type: BlockDivider}
}

// EntryText renders one entry in the fixed update template.
func EntryText(e model.FeedEntry) string {
	return fmt.Sprintf("\n*Updated: %s*\nTitle: %s\nLink: <%s>\n",
		mrkdwnEscaper.Replace(e.Updated), mrkdwnEscaper.Replace(e.Title), linkEscaper.Replace(e.URL))
}

// BuildBlocks lays out the intro, a divider, then each entry followed by a divider.
func BuildBlocks(intro string, entries []model.FeedEntry) []Block {
	blocks := make([]Block, 0, 2+2*len(entries))
	blocks = append(blocks, section(intro), divider())
	for _, e := range entries {
		blocks = append(blocks, section(EntryText(e)), divider())
	}
	return blocks
}

// Chunk splits blocks into consecutive groups of at most size blocks.
func Chunk(blocks []Block, size int) [][]Block {
	if len(blocks) == 0 || size <= 0 {
		return nil
	}
	chunks := make([][]Block, 0, (len(blocks)+size-1)/size)
	for start := 0; start < len(blocks); start += size {
		end := min(start+size, len(blocks))
		chunks = append(chunks, blocks[start:end])
	}
	return chunks
}

// BuildPayloads turns entries into one payload per MaxBlocks-sized chunk.
func BuildPayloads(channel, username, intro string, entries []model.FeedEntry) []Payload {
	chunks := Chunk(BuildBlocks(intro, entries), MaxBlocks)
	payloads := make([]Payload, 0, len(chunks))
	for _, c := range chunks {
		payloads = append(payloads, Payload{Channel: channel, Username: username, Blocks: c})
	}
	return payloads
}
