package events

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// StreamBody is an open streaming response body. Characters come out
// already decoded to runes; Close releases the underlying connection and
// must be safe to call more than once.
type StreamBody interface {
	io.RuneReader
	io.Closer
}

// Transport is the narrow surface the event subsystem needs from the
// camera HTTP client. Command performs one request/response CGI call and
// returns the decoded body. OpenStream performs the same call with the
// read deadline disabled and hands back the open body, retrying the
// connect phase up to retries times.
type Transport interface {
	Command(path string) ([]byte, error)
	OpenStream(path string, retries int) (StreamBody, error)
}

// Client exposes the camera event subsystem on top of a Transport.
type Client struct {
	transport Transport
	log       *log.Entry
}

func New(transport Transport) *Client {
	return &Client{
		transport: transport,
		log:       log.WithField("component", "camera-events"),
	}
}

func (c *Client) command(path string) (string, error) {
	body, err := c.transport.Command(path)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// tableValue extracts the value part of one name=value row of a camera
// config table response. Rows without a separator come back trimmed.
func tableValue(row string) string {
	if _, value, found := strings.Cut(row, "="); found {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(row)
}

// parseBool interprets the boolean spellings camera firmware uses in
// config tables.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
