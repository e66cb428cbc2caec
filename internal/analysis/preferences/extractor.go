// Package preferences 从回复文本中提取温泉偏好 JSON 块。
package preferences

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
)

var fencedJSON = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")

// Extract returns the preferences carried by the first ```json fenced block
// in text. A missing block, malformed JSON, or a payload that does not match
// the schema all yield (nil, false); the reason is logged.
func Extract(text string) (*onsen.Preferences, bool) {
	match := fencedJSON.FindStringSubmatch(text)
	if match == nil || strings.TrimSpace(match[1]) == "" {
		return nil, false
	}
	raw := []byte(match[1])

	problems, err := Validate(raw)
	if err != nil {
		log.Printf("[preferences] payload rejected: %v", err)
		return nil, false
	}
	if len(problems) > 0 {
		log.Printf("[preferences] payload does not match schema: %s", strings.Join(problems, "; "))
		return nil, false
	}

	var prefs onsen.Preferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		log.Printf("[preferences] failed to decode payload: %v", err)
		return nil, false
	}
	return &prefs, true
}

// Strip removes the first fenced JSON block, leaving the conversational text.
func Strip(text string) string {
	loc := fencedJSON.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}
