package events

import (
	"strings"
	"unicode"
)

// decodePayload turns one raw chunk payload into an Event. The wire
// format is key=value pairs separated by semicolons, with the data key
// carrying a loosely formatted object instead of a plain value. A
// payload without a Code key means the framing loop lost sync with the
// feed.
func decodePayload(text string) (*Event, error) {
	text = strings.TrimSpace(text)
	text = strings.NewReplacer("\r", "", "\n", "").Replace(text)

	event := &Event{Values: map[string]string{}}
	for _, segment := range strings.Split(text, ";") {
		key, value, found := strings.Cut(segment, "=")
		if !found || key == "" || value == "" {
			continue
		}
		if key == "data" {
			event.Data = parseLooseObject(value)
			continue
		}
		event.Values[key] = value
	}

	code, ok := event.Values["Code"]
	if !ok {
		return nil, &ProtocolError{Reason: "event payload has no Code key"}
	}
	event.Code = code
	return event, nil
}

// parseLooseObject decodes the pseudo-JSON blob firmware emits under the
// data key: key : value pairs where either side may be a quoted string
// or a bare token, with no enclosing braces, commas or consistent
// quoting. Tokens that do not form a pair are skipped.
func parseLooseObject(blob string) map[string]string {
	object := map[string]string{}
	tokens := tokenizeLoose(blob)
	for i := 0; i+2 < len(tokens); {
		if tokens[i+1] == ":" && tokens[i] != ":" && tokens[i+2] != ":" {
			object[stripQuotes(tokens[i])] = stripQuotes(tokens[i+2])
			i += 3
			continue
		}
		i++
	}
	return object
}

// tokenizeLoose splits a loose object blob into tokens: double-quoted
// strings (backslash escapes respected, quotes kept) or bare runs of
// non-space, non-quote characters.
func tokenizeLoose(blob string) []string {
	var tokens []string
	runes := []rune(blob)
	for i := 0; i < len(runes); {
		switch {
		case unicode.IsSpace(runes[i]):
			i++
		case runes[i] == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
				}
				j++
			}
			if j < len(runes) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '"' {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		}
	}
	return tokens
}

func stripQuotes(token string) string {
	return strings.ReplaceAll(token, `"`, "")
}
