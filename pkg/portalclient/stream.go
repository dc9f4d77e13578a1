package portalclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

const (
	eventAssignment = "assignment"
	eventMessage    = "message"

	maxEventSize = 1 << 20
)

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// streamSubscription reads one SSE connection and forwards the events named
// by want. Done closes when the connection ends for any reason.
type streamSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *streamSubscription) Done() <-chan struct{} { return s.done }

func (s *streamSubscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// openStream blocks until the server accepts the stream. ctx bounds only the
// handshake; the stream itself lives until Close or disconnect.
func (c *Client) openStream(ctx context.Context, clientID, want string, handle func([]byte) error) (ports.Subscription, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	req, err := c.newRequest(streamCtx, http.MethodGet, clientPath(clientID, "/stream"), nil)
	if err != nil {
		stop()
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.stream.Do(req)
	if !stop() {
		// ctx ended during the handshake.
		if err == nil {
			res.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("open stream: %w", ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, transportErr(err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		cancel()
		return nil, decodeError(res, nil)
	}

	sub := &streamSubscription{cancel: cancel, done: make(chan struct{})}
	log := c.log.With().Str("client_id", clientID).Str("event", want).Logger()

	go func() {
		defer close(sub.done)
		defer res.Body.Close()
		err := readEvents(res, func(name string, data []byte) {
			if name != want {
				return
			}
			if err := handle(data); err != nil {
				log.Warn().Err(err).Msg("dropping undecodable stream event")
			}
		})
		if streamCtx.Err() == nil {
			log.Warn().Err(err).Msg("stream disconnected")
		}
	}()
	return sub, nil
}

// readEvents parses text/event-stream framing: "event:" and "data:" fields,
// blank line terminates an event, lines starting with ':' are comments.
func readEvents(res *http.Response, emit func(name string, data []byte)) error {
	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	var name string
	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if data.Len() > 0 {
				if name == "" {
					name = eventMessage
				}
				emit(name, bytes.Clone(data.Bytes()))
			}
			name = ""
			data.Reset()
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("event:")):
			name = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(line[len("data:"):], []byte(" ")))
		}
	}
	return sc.Err()
}
