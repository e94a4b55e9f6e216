package contextpack

import (
	"encoding/json"
	"strings"
)

// Format selects the wire serialization of a packed context payload.
type Format string

const (
	// FormatMinified is pipe-joined TYPE:value tokens — the cheapest
	// encoding per token.
	FormatMinified Format = "minified"
	// FormatStructured is a JSON type→values map.
	FormatStructured Format = "structured"
	// FormatReadable is line-oriented and human-legible.
	FormatReadable Format = "readable"
)

// PolicyTag is the non-negotiable policy marker. It is always emitted,
// even under budgets too tight for any other content — the assistant's
// search-first behavior depends on seeing it every turn.
const PolicyTag = "CS:ALWAYS_SEARCH_FIRST"

// noMatchMarker replaces an otherwise empty payload. An empty result
// is indistinguishable from "not implemented" to a caller.
const noMatchMarker = "NO_MATCHES"

const (
	readableStart = "=== CONTEXT START ==="
	readableEnd   = "=== CONTEXT END ==="
)

// ParseFormat maps a caller string to a Format, defaulting to minified.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(s)) {
	case FormatStructured:
		return FormatStructured
	case FormatReadable:
		return FormatReadable
	default:
		return FormatMinified
	}
}

// typeLabels are the minified TYPE prefixes.
var typeLabels = map[ItemType]string{
	TypeWorkspace: "WS",
	TypeProject:   "PROJ",
	TypeDecision:  "DEC",
	TypeMemory:    "MEM",
	TypeLesson:    "LES",
}

// readableLabels are the readable line prefixes.
var readableLabels = map[ItemType]string{
	TypeWorkspace: "Workspace",
	TypeProject:   "Project",
	TypeDecision:  "Decision",
	TypeMemory:    "Memory",
	TypeLesson:    "Lesson",
}

// structuredKeys group items in the structured map.
var structuredKeys = map[ItemType]string{
	TypeWorkspace: "workspace",
	TypeProject:   "project",
	TypeDecision:  "decisions",
	TypeMemory:    "memory",
	TypeLesson:    "lessons",
}

// serialize packs ranked items into at most charBudget characters.
// Items are inserted whole until the next would exceed the budget —
// never truncated mid-item.
func serialize(items []Item, charBudget int, format Format, haveWorkspace bool) string {
	switch format {
	case FormatStructured:
		return serializeStructured(items, charBudget, haveWorkspace)
	case FormatReadable:
		return serializeReadable(items, charBudget, haveWorkspace)
	default:
		return serializeMinified(items, charBudget, haveWorkspace)
	}
}

// sanitizeMinified strips the characters that would break the
// pipe-joined encoding.
func sanitizeMinified(value string) string {
	value = strings.ReplaceAll(value, "|", "/")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

func serializeMinified(items []Item, charBudget int, haveWorkspace bool) string {
	out := PolicyTag // included unconditionally, budget or not
	packed := 0
	for _, item := range items {
		token := typeLabels[item.Type] + ":" + sanitizeMinified(item.Value)
		if len(out)+1+len(token) > charBudget {
			break // remaining items are dropped whole, never truncated
		}
		out += "|" + token
		packed++
	}
	if packed == 0 && haveWorkspace {
		if marker := "|" + noMatchMarker; len(out)+len(marker) <= charBudget {
			out += marker
		}
	}
	return out
}

func serializeStructured(items []Item, charBudget int, haveWorkspace bool) string {
	payload := map[string]any{"_policy": PolicyTag}
	encode := func() string {
		data, err := json.Marshal(payload)
		if err != nil {
			return ""
		}
		return string(data)
	}

	out := encode() // the tag alone ships even over budget
	packed := 0
	for _, item := range items {
		key := structuredKeys[item.Type]
		prev, _ := payload[key].([]string)
		payload[key] = append(append([]string(nil), prev...), item.Value)

		candidate := encode()
		if len(candidate) > charBudget {
			if len(prev) == 0 {
				delete(payload, key)
			} else {
				payload[key] = prev
			}
			break
		}
		out = candidate
		packed++
	}

	if packed == 0 && haveWorkspace {
		payload["note"] = noMatchMarker
		if candidate := encode(); len(candidate) <= charBudget {
			out = candidate
		}
	}
	return out
}

func serializeReadable(items []Item, charBudget int, haveWorkspace bool) string {
	lines := []string{readableStart}
	used := len(readableStart) + 1 + len(readableEnd) + 1 // both sentinels ship regardless

	packed := 0
	for _, item := range items {
		line := readableLabels[item.Type] + ": " + strings.ReplaceAll(item.Value, "\n", " ")
		if used+len(line)+1 > charBudget {
			break
		}
		lines = append(lines, line)
		used += len(line) + 1
		packed++
	}

	if packed == 0 && haveWorkspace {
		marker := "(no matching context)"
		if used+len(marker)+1 <= charBudget {
			lines = append(lines, marker)
		}
	}

	lines = append(lines, readableEnd)
	return strings.Join(lines, "\n")
}

// itemIncluded reports whether an item's rendered value made it into
// the final output. Counting attempts would overstate sources_used
// when the budget dropped items.
func itemIncluded(output string, item Item, format Format) bool {
	switch format {
	case FormatStructured:
		encoded, err := json.Marshal(item.Value)
		if err != nil {
			return false
		}
		return strings.Contains(output, string(encoded))
	case FormatReadable:
		return strings.Contains(output, readableLabels[item.Type]+": "+strings.ReplaceAll(item.Value, "\n", " "))
	default:
		return strings.Contains(output, typeLabels[item.Type]+":"+sanitizeMinified(item.Value))
	}
}
