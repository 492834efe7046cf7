package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/bones/internal/apperr"
)

const (
	maxLineBytes = 1 << 20
	ruleTag      = "bones"
)

// HTTPSourceConfig describes a newline-delimited JSON filtered stream.
type HTTPSourceConfig struct {
	// Endpoint is the streaming URL.
	Endpoint string
	// RulesEndpoint manages the server-side filter. Empty disables rule sync.
	RulesEndpoint string
	// Account restricts the stream to posts from this account.
	Account string
	// Language restricts the stream to posts in this language.
	Language string
}

// HTTPSource connects to a filtered stream over HTTP. Each line of the
// response body is one message: a blank line is a keep-alive, a JSON object
// with "data" is a post, and a JSON object with only "errors" is a
// disconnect notice.
type HTTPSource struct {
	client *http.Client
	cfg    HTTPSourceConfig
	logger *slog.Logger

	rulesSynced bool
}

// NewHTTPSource creates a source. client must attach credentials; see
// NewBearerClient.
func NewHTTPSource(client *http.Client, cfg HTTPSourceConfig, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{client: client, cfg: cfg, logger: logger}
}

// FilterRule is the server-side rule value for the configured account and language.
func (s *HTTPSource) FilterRule() string {
	parts := make([]string, 0, 2)
	if s.cfg.Account != "" {
		parts = append(parts, "from:"+s.cfg.Account)
	}
	if s.cfg.Language != "" {
		parts = append(parts, "lang:"+s.cfg.Language)
	}
	return strings.Join(parts, " ")
}

// Connect opens the stream. Connect is not safe for concurrent use; the
// ingester calls it from a single goroutine.
func (s *HTTPSource) Connect(ctx context.Context) (Stream, error) {
	if !s.rulesSynced && s.cfg.RulesEndpoint != "" && s.FilterRule() != "" {
		if err := s.syncRules(ctx); err != nil {
			return nil, fmt.Errorf("sync rules: %w", err)
		}
		s.rulesSynced = true
	}

	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("tweet.fields", "created_at,author_id,in_reply_to_user_id,referenced_tweets,lang")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := statusError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	r := bufio.NewReaderSize(resp.Body, 64<<10)
	return &httpStream{body: resp.Body, r: r}, nil
}

type rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// syncRules makes sure the filter rule exists. Rules the service did not
// create (other tags) are left alone.
func (s *HTTPSource) syncRules(ctx context.Context) error {
	want := s.FilterRule()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.RulesEndpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}

	var existing struct {
		Data []rule `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&existing); err != nil {
		return fmt.Errorf("decode rules: %w", err)
	}
	for _, r := range existing.Data {
		if r.Value == want {
			s.logger.Debug("ingest: filter rule present", slog.String("rule", want))
			return nil
		}
	}

	body, _ := json.Marshal(map[string][]rule{"add": {{Value: want, Tag: ruleTag}}})
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RulesEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	addResp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer addResp.Body.Close()
	if err := statusError(addResp); err != nil {
		return err
	}
	s.logger.Info("ingest: filter rule added", slog.String("rule", want))
	return nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", apperr.ErrStreamUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", apperr.ErrStreamRateLimited, resp.StatusCode)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
}

type httpStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

// Next reads one line. Cancelling the request context passed to Connect
// unblocks a pending read.
func (s *httpStream) Next(_ context.Context) (Message, error) {
	line, err := s.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, fmt.Errorf("%w: end of stream", apperr.ErrStreamClosed)
		}
		return Message{}, err
	}
	return DecodeLine(line)
}

func (s *httpStream) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := s.r.ReadLine()
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxLineBytes {
			// Drain the rest of the oversized line before reporting it.
			for isPrefix {
				if _, isPrefix, err = s.r.ReadLine(); err != nil {
					return nil, err
				}
			}
			return nil, fmt.Errorf("%w: line exceeds %d bytes", apperr.ErrMalformedMessage, maxLineBytes)
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

func (s *httpStream) Close() error {
	return s.body.Close()
}

type wirePost struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"created_at"`
	AuthorID         string    `json:"author_id"`
	InReplyToUserID  string    `json:"in_reply_to_user_id"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type wireProblem struct {
	Title          string `json:"title"`
	Detail         string `json:"detail"`
	DisconnectType string `json:"disconnect_type"`
	Type           string `json:"type"`
}

type wireEnvelope struct {
	Data   *wirePost     `json:"data"`
	Errors []wireProblem `json:"errors"`
}

// DecodeLine turns one stream line into a Message.
func DecodeLine(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{Kind: KindHeartbeat}, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", apperr.ErrMalformedMessage, err)
	}

	switch {
	case env.Data != nil:
		return decodePost(env.Data), nil
	case len(env.Errors) > 0:
		p := env.Errors[0]
		reason := p.Title
		if p.Detail != "" {
			reason += ": " + p.Detail
		}
		return Message{Kind: KindDisconnected, Code: disconnectCode(p), Reason: reason}, nil
	default:
		return Message{}, fmt.Errorf("%w: neither data nor errors", apperr.ErrMalformedMessage)
	}
}

func decodePost(p *wirePost) Message {
	msg := Message{
		Kind:      KindContent,
		ID:        p.ID,
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
	}
	for _, ref := range p.ReferencedTweets {
		switch ref.Type {
		case "retweeted":
			msg.IsReshare = true
		case "quoted":
			msg.IsQuote = true
		case "replied_to":
			// A reply in the author's own thread is still an original post.
			if p.InReplyToUserID != "" && p.InReplyToUserID != p.AuthorID {
				msg.IsReplyToOther = true
			}
		}
	}
	if p.InReplyToUserID != "" && p.AuthorID != "" && p.InReplyToUserID != p.AuthorID {
		msg.IsReplyToOther = true
	}
	return msg
}

// disconnectCode maps an upstream problem to an HTTP-like status code.
func disconnectCode(p wireProblem) int {
	switch p.Title {
	case "operational-disconnect":
		return http.StatusServiceUnavailable
	case "ConnectionException":
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
