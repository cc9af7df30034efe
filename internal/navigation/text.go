package navigation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// chapterLine matches plain-text chapter headings such as "CHAPTER IV".
var chapterLine = regexp.MustCompile(`(?im)^[ \t]*chapter[ \t]+\S.*$`)

// OpenText loads a plain text file. Lines starting with "Chapter" split it
// into chapters; otherwise the whole file is one chapter.
func OpenText(path string) (Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	base := filepath.Base(path)
	return &sections{title: titleFromPath(path), items: splitText(base, string(data))}, nil
}

func splitText(base, content string) []section {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	locs := chapterLine.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		body := normalizeText(content)
		if body == "" {
			return nil
		}
		return []section{{ref: ChapterRef{Href: base, Label: titleFromPath(base)}, text: body}}
	}

	var items []section
	add := func(label, body string) {
		body = normalizeText(body)
		if body == "" {
			return
		}
		n := len(items)
		items = append(items, section{
			ref:  ChapterRef{Href: base + "#" + strconv.Itoa(n+1), Label: label, Order: n},
			text: body,
		})
	}

	if front := content[:locs[0][0]]; strings.TrimSpace(front) != "" {
		add(titleFromPath(base), front)
	}
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		label := strings.TrimSpace(content[loc[0]:loc[1]])
		add(label, endSentence(label)+"\n"+content[loc[1]:end])
	}
	return items
}
