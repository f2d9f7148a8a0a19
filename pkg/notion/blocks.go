package notion

import "strings"

// notionRichTextLimit is Notion's per-rich-text character cap.
const notionRichTextLimit = 2000

// markdownToBlocks converts simple markdown into Notion block objects.
// Only the structures the generated documents use are handled: headings,
// bullet and numbered lists, and paragraphs.
func markdownToBlocks(content string) []map[string]any {
	var blocks []map[string]any

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "### "):
			blocks = append(blocks, textBlock("heading_3", strings.TrimPrefix(line, "### ")))
		case strings.HasPrefix(line, "## "):
			blocks = append(blocks, textBlock("heading_2", strings.TrimPrefix(line, "## ")))
		case strings.HasPrefix(line, "# "):
			blocks = append(blocks, textBlock("heading_1", strings.TrimPrefix(line, "# ")))
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			blocks = append(blocks, textBlock("bulleted_list_item", line[2:]))
		case isNumberedItem(line):
			blocks = append(blocks, textBlock("numbered_list_item", stripNumberPrefix(line)))
		default:
			blocks = append(blocks, textBlock("paragraph", line))
		}
	}

	return blocks
}

func isNumberedItem(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i+1 < len(line) && line[i] == '.' && line[i+1] == ' '
}

func stripNumberPrefix(line string) string {
	i := strings.Index(line, ". ")
	return line[i+2:]
}

func textBlock(blockType, text string) map[string]any {
	if len(text) > notionRichTextLimit {
		text = text[:notionRichTextLimit]
	}
	return map[string]any{
		"object": "block",
		"type":   blockType,
		blockType: map[string]any{
			"rich_text": []map[string]any{
				{
					"type": "text",
					"text": map[string]string{"content": text},
				},
			},
		},
	}
}
