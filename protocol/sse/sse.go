// Package sse runs agents over HTTP: the run input is POSTed as JSON and the
// AG-UI events stream back as text/event-stream.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Header     http.Header
	Logger     logging.Logger
}

// Client is a protocol.Agent speaking SSE.
type Client struct {
	url    string
	http   *http.Client
	header http.Header
	logger logging.Logger
}

var _ protocol.Agent = (*Client)(nil)

// New creates a Client posting runs to url.
func New(url string, optFns ...func(o *Options)) *Client {
	opts := Options{HTTPClient: http.DefaultClient, Header: http.Header{}, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{url: url, http: opts.HTTPClient, header: opts.Header, logger: logging.OrNoOp(opts.Logger)}
}

// Run implements protocol.Agent.
func (c *Client) Run(ctx context.Context, in protocol.RunInput, h protocol.Handler) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode run input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &protocol.HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	dec := protocol.NewDecoder(h, func(o *protocol.DecoderOptions) { o.Logger = c.logger })
	err = ReadEvents(resp.Body, func(data []byte) error {
		reply, err := dec.Handle(ctx, data)
		if err != nil {
			return err
		}
		if reply != nil {
			c.logger.Warn("Interrupt response cannot be returned over SSE", "name", reply.Name)
		}
		if dec.Done() {
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var runErr *protocol.RunFailedError
		if errors.As(err, &runErr) {
			return err
		}
		return fmt.Errorf("read event stream: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return dec.Finish()
}

var errStop = errors.New("stop")

// ReadEvents parses an event stream and calls fn with the data of every
// event. Multi-line data fields are joined with newlines; comments and other
// fields are ignored.
func ReadEvents(r io.Reader, fn func(data []byte) error) error {
	br := bufio.NewReader(r)
	var data bytes.Buffer
	hasData := false
	flush := func() error {
		if !hasData {
			return nil
		}
		payload := bytes.Clone(data.Bytes())
		data.Reset()
		hasData = false
		return fn(payload)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case trimmed == "" && line != "":
			if ferr := flush(); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(trimmed, "data:"):
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " "))
			hasData = true
		}
		if errors.Is(err, io.EOF) {
			return flush()
		}
	}
}
