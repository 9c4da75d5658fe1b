package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type modelResponse struct {
	Answer    *string         `json:"answer"`
	Citations []modelCitation `json:"citations"`
}

type modelCitation struct {
	DocTitle string `json:"docTitle"`
	Snippet  string `json:"snippet"`
}

// ParseResponse validates raw model output against the answer/citations
// contract. Citations whose docTitle does not exactly match one of docs are
// dropped; when several documents share a title the first one in docs wins.
func ParseResponse(raw string, docs []DocumentRef) (TurnPayload, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return TurnPayload{}, &ParseError{Reason: "empty response", Raw: raw}
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()

	var parsed modelResponse
	if err := dec.Decode(&parsed); err != nil {
		return TurnPayload{}, &ParseError{Reason: err.Error(), Raw: raw}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return TurnPayload{}, &ParseError{Reason: "trailing data after JSON object", Raw: raw}
	}

	if parsed.Answer == nil {
		return TurnPayload{}, &ParseError{Reason: "missing answer field", Raw: raw}
	}
	if strings.TrimSpace(*parsed.Answer) == "" {
		return TurnPayload{}, &ParseError{Reason: "answer is empty", Raw: raw}
	}

	byTitle := make(map[string]string, len(docs))
	for _, doc := range docs {
		if _, ok := byTitle[doc.Title]; !ok {
			byTitle[doc.Title] = doc.ID
		}
	}

	citations := make([]Citation, 0, len(parsed.Citations))
	for _, c := range parsed.Citations {
		if c.DocTitle == "" {
			continue
		}
		id, ok := byTitle[c.DocTitle]
		if !ok {
			continue
		}
		citations = append(citations, Citation{DocTitle: c.DocTitle, Snippet: c.Snippet, DocumentID: id})
	}

	return TurnPayload{Answer: *parsed.Answer, Citations: citations}, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func describeParseFailure(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return fmt.Sprint(err)
}
