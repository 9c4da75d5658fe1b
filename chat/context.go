package chat

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	blockSeparator   = "\n\n"
	truncationMarker = "[content truncated]"
)

// AssembleContext renders the documents as labeled blocks in creation order.
// When budget is positive and the blob would exceed it (in runes), content is
// cut from the oldest documents first; headers are always kept so every title
// stays citable. A budget that cannot be met even with empty contents still
// yields a result with Truncated set.
func AssembleContext(docs []Document, budget int) (Grounding, error) {
	if len(docs) == 0 {
		return Grounding{}, ErrNoContext
	}

	ordered := make([]Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	contents := make([]string, len(ordered))
	total := utf8.RuneCountInString(blockSeparator) * (len(ordered) - 1)
	for i := range ordered {
		contents[i] = ordered[i].Content
		total += utf8.RuneCountInString(blockHeader(ordered[i])) + utf8.RuneCountInString(contents[i])
	}

	truncated := false
	if budget > 0 && total > budget {
		truncated = true
		overflow := total - budget
		markerLen := utf8.RuneCountInString(truncationMarker)
		for i := 0; i < len(contents) && overflow > 0; i++ {
			runes := []rune(contents[i])
			keep := len(runes) - markerLen - overflow
			if keep < 0 {
				keep = 0
			}
			reduction := len(runes) - (keep + markerLen)
			if reduction <= 0 {
				continue
			}
			contents[i] = string(runes[:keep]) + truncationMarker
			overflow -= reduction
		}
	}

	var sb strings.Builder
	refs := make([]DocumentRef, 0, len(ordered))
	for i := range ordered {
		if i > 0 {
			sb.WriteString(blockSeparator)
		}
		sb.WriteString(blockHeader(ordered[i]))
		sb.WriteString(contents[i])
		refs = append(refs, DocumentRef{ID: ordered[i].ID, Title: ordered[i].Title})
	}

	return Grounding{
		Text:      sb.String(),
		Documents: refs,
		Used:      len(ordered),
		Truncated: truncated,
	}, nil
}

func blockHeader(doc Document) string {
	return fmt.Sprintf("DOCUMENT_ID: %s\nTITLE: %s\nCONTENT: ", doc.ID, doc.Title)
}
