// Package client is the HTTP/CGI transport for Dahua/Amcrest cameras:
// digest-authenticated request/response calls plus long-lived streaming
// connections for the event feed.
package client

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	dac "github.com/xinsnake/go-http-digest-auth-client"
	"golang.org/x/net/html/charset"

	"github.com/edgekit/dahua-events/events"
)

type Config struct {
	// Address is the camera base URL, e.g. http://192.168.1.108
	Address  string
	Username string
	Password string
	// ConnectTimeout bounds the dial phase of streaming connections.
	ConnectTimeout time.Duration
	// RequestTimeout bounds whole request/response calls. It never
	// applies to streaming connections.
	RequestTimeout time.Duration
	// Retries is the connect retry count used when a call does not
	// specify its own.
	Retries int
}

// Client talks to one camera. A Client is not safe for concurrent use;
// each camera session should own its own instance.
type Client struct {
	config          Config
	httpClient      http.Client
	streamClient    http.Client
	digestTransport *dac.DigestTransport
	streamTransport *dac.DigestTransport
}

func New(config Config) *Client {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 15 * time.Second
	}
	c := &Client{config: config}
	c.httpClient = http.Client{Timeout: config.RequestTimeout}
	// No overall deadline on the stream client: the camera holds the
	// attach connection open indefinitely between events. Only the dial
	// phase is bounded.
	c.streamClient = http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: config.ConnectTimeout}).DialContext,
		},
	}
	return c
}

func (c *Client) url(path string) string {
	return c.config.Address + "/cgi-bin/" + path
}

func (c *Client) roundTrip(httpClient *http.Client, transport **dac.DigestTransport, path string) (*http.Response, error) {
	if *transport == nil {
		t := dac.NewTransport(c.config.Username, c.config.Password)
		*transport = &t
		(*transport).HTTPClient = httpClient
	}

	req, err := http.NewRequest("GET", c.url(path), nil)
	if err != nil {
		return nil, err
	}

	resp, err := (*transport).RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("camera api returned error code %s", resp.Status)
	}
	return resp, nil
}

// Command performs one CGI call and returns the response body decoded to
// UTF-8, retrying the request up to the configured retry count.
func (c *Client) Command(path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		resp, err := c.roundTrip(&c.httpClient, &c.digestTransport, path)
		if err != nil {
			lastErr = err
			log.Debugf("Command %s attempt %d failed: %v", path, attempt+1, err)
			continue
		}
		body, err := readDecoded(resp)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, errors.Wrapf(lastErr, "camera command %s failed", path)
}

// readDecoded drains a response body through the charset declared in its
// Content-Type header, defaulting to UTF-8.
func readDecoded(resp *http.Response) ([]byte, error) {
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.Wrap(err, "resolving response charset")
	}
	return io.ReadAll(reader)
}

// OpenStream opens a long-lived streaming CGI call and returns the open
// body. The caller owns the body and must close it. retries bounds the
// connect attempts; a negative value falls back to the configured retry
// count.
func (c *Client) OpenStream(path string, retries int) (events.StreamBody, error) {
	if retries < 0 {
		retries = c.config.Retries
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := c.roundTrip(&c.streamClient, &c.streamTransport, path)
		if err != nil {
			lastErr = err
			log.Debugf("Stream connect to %s attempt %d failed: %v", path, attempt+1, err)
			continue
		}
		stream, err := newStreamResponse(resp)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		return stream, nil
	}
	return nil, errors.Wrapf(lastErr, "opening camera stream %s", path)
}
