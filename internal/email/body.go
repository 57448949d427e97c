package email

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/gmail/v1"
)

// NoBodyText is the body used when no decodable part is found
const NoBodyText = "Could not extract body"

var (
	blankRunRegex  = regexp.MustCompile(`[^\S\n]+`)
	newlineRegex   = regexp.MustCompile(`\n{3,}`)
	blockSelectors = "p, div, br, h1, h2, h3, h4, h5, h6, li, tr"
)

// ParseMessage converts a raw message payload into a ParsedMessage
func ParseMessage(msg *gmail.Message) ParsedMessage {
	if msg == nil {
		return ParsedMessage{Body: NoBodyText}
	}

	parsed := ParsedMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  html.UnescapeString(msg.Snippet),
		Body:     NoBodyText,
	}

	if msg.Payload == nil {
		return parsed
	}

	parsed.From = headerValue(msg.Payload.Headers, "From")
	parsed.Subject = headerValue(msg.Payload.Headers, "Subject")
	parsed.Date = headerValue(msg.Payload.Headers, "Date")

	if body, ok := extractBody(msg.Payload); ok {
		parsed.Body = body
	}

	return parsed
}

// headerValue returns the first header matching name, ignoring case
func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header != nil && strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// extractBody prefers a single-part body, then text/plain, then text/html
func extractBody(payload *gmail.MessagePart) (string, bool) {
	if payload.Body != nil && payload.Body.Data != "" {
		if text, ok := decodeBodyData(payload.Body.Data); ok {
			if isHTML(payload.MimeType) {
				return htmlToText(text), true
			}
			return text, true
		}
	}

	if text, ok := findPart(payload, "text/plain"); ok {
		return text, true
	}

	if text, ok := findPart(payload, "text/html"); ok {
		return htmlToText(text), true
	}

	return "", false
}

// findPart searches the part tree depth-first for a decodable part of mimeType
func findPart(part *gmail.MessagePart, mimeType string) (string, bool) {
	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		if strings.EqualFold(child.MimeType, mimeType) && child.Body != nil && child.Body.Data != "" {
			if text, ok := decodeBodyData(child.Body.Data); ok {
				return text, true
			}
		}
		if len(child.Parts) > 0 {
			if text, ok := findPart(child, mimeType); ok {
				return text, true
			}
		}
	}
	return "", false
}

// decodeBodyData decodes base64url body data and normalizes line endings
func decodeBodyData(data string) (string, bool) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", false
		}
	}

	text := strings.ReplaceAll(string(decoded), "\r\n", "\n")
	return text, true
}

func isHTML(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/html")
}

// htmlToText converts HTML content to plain text
func htmlToText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}

	doc.Find("script, style, head, meta, link").Remove()
	doc.Find(blockSelectors).Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := blankRunRegex.ReplaceAllString(doc.Text(), " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	text = newlineRegex.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
