package events

import "strings"

// lineReader frames a decoded character stream into CRLF-terminated
// lines. The event feed interleaves line-delimited framing headers with
// payloads that are not line-delimited, so framing has to work one
// character at a time; byte-count buffering would eat into the next
// payload.
type lineReader struct {
	body StreamBody
	buf  []rune
}

func newLineReader(body StreamBody) *lineReader {
	return &lineReader{body: body}
}

// next returns the next complete line with the CRLF terminator and
// surrounding whitespace stripped. A partial line pending when the
// stream ends is dropped, some firmware closes the feed mid-line.
func (lr *lineReader) next() (string, error) {
	for {
		ch, _, err := lr.body.ReadRune()
		if err != nil {
			return "", err
		}
		lr.buf = append(lr.buf, ch)
		if n := len(lr.buf); n >= 2 && lr.buf[n-2] == '\r' && lr.buf[n-1] == '\n' {
			line := strings.TrimSpace(string(lr.buf))
			lr.buf = lr.buf[:0]
			return line, nil
		}
	}
}

// readRunes reads exactly n decoded characters from the stream. Chunk
// payloads are announced by character count, not terminated by CRLF.
func readRunes(body StreamBody, n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		ch, _, err := body.ReadRune()
		if err != nil {
			return "", err
		}
		sb.WriteRune(ch)
	}
	return sb.String(), nil
}
