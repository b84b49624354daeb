package client

import (
	"bufio"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

// StreamResponse is one open streaming connection to the camera. Runes
// come out of the charset-decoded body one at a time; Close releases the
// connection and is safe to call more than once.
type StreamResponse struct {
	resp      *http.Response
	runes     *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

func newStreamResponse(resp *http.Response) (*StreamResponse, error) {
	var decoded io.Reader = resp.Body
	// No charset sniffing here: sniffing reads ahead and would stall a
	// feed that trickles bytes between events. Only an explicitly
	// declared charset is honored, everything else is read as UTF-8.
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if label, ok := params["charset"]; ok {
			reader, err := charset.NewReaderLabel(label, resp.Body)
			if err != nil {
				return nil, errors.Wrapf(err, "unsupported stream charset %s", label)
			}
			decoded = reader
		}
	}
	return &StreamResponse{resp: resp, runes: bufio.NewReader(decoded)}, nil
}

func (r *StreamResponse) ReadRune() (rune, int, error) {
	return r.runes.ReadRune()
}

func (r *StreamResponse) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.resp.Body.Close()
	})
	return r.closeErr
}
