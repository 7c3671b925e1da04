package notion

import (
	"encoding/json"
	"strings"
)

// block is one Notion block. The type-specific object, stored under the key
// named by Type, is decoded into body.
type block struct {
	ID          string
	Type        string
	HasChildren bool
	body        blockBody
}

// blockBody holds the fields shared by the block types this package reads.
type blockBody struct {
	Title    string     `json:"title"`
	RichText []richText `json:"rich_text"`
	Checked  bool       `json:"checked"`
}

// richText is one fragment of a rich text array.
type richText struct {
	PlainText string `json:"plain_text"`
}

// UnmarshalJSON decodes the common block fields, then the object keyed by
// the block's type.
func (b *block) UnmarshalJSON(data []byte) error {
	var head struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.ID, b.Type, b.HasChildren = head.ID, head.Type, head.HasChildren

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields[head.Type]; ok && len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &b.body); err != nil {
			return err
		}
	}
	return nil
}

// prefixes maps block types to the markdown marker written before their text.
// Types not listed are written without a marker.
var prefixes = map[string]string{
	"heading_1":          "# ",
	"heading_2":          "## ",
	"heading_3":          "### ",
	"bulleted_list_item": "- ",
	"numbered_list_item": "1. ",
	"quote":              "> ",
}

// line renders the block as a single line of text. It reports false for
// blocks that carry no text.
func (b *block) line() (string, bool) {
	var sb strings.Builder
	for _, rt := range b.body.RichText {
		sb.WriteString(rt.PlainText)
	}
	text := sb.String()
	if text == "" {
		return "", false
	}

	prefix := prefixes[b.Type]
	if b.Type == "to_do" {
		prefix = "- [ ] "
		if b.body.Checked {
			prefix = "- [x] "
		}
	}
	return prefix + text, true
}
