package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/plantsim/console/internal/session"
)

// StatusEvent is one line of the simulator backend's status stream. The
// backend is the authority on transitions; the console only records them.
// Server restarts surface as "interrupted", duration limits as "expired".
type StatusEvent struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// Watcher consumes the simulator backend's status stream and feeds it into
// the session store: the connectivity flag on connect/disconnect, status
// transitions as they arrive. A dropped stream clears the connectivity flag
// only, never the session itself.
type Watcher struct {
	baseURL string
	client  *http.Client
	store   *session.Store
	log     zerolog.Logger
}

// NewWatcher creates a watcher against the simulator backend's base URL.
func NewWatcher(baseURL string, store *session.Store, log zerolog.Logger) *Watcher {
	return &Watcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		store:   store,
		log:     log,
	}
}

// Run consumes the stream until ctx is cancelled, reconnecting with
// exponential backoff after every drop.
func (w *Watcher) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := w.consume(ctx, bo.Reset)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn().Err(err).Msg("simulator status stream dropped")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo))

	return err
}

// consume opens the stream and applies events until it ends. onConnect runs
// once the stream is established, before any event is read.
func (w *Watcher) consume(ctx context.Context, onConnect func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/v1/events/status", nil)
	if err != nil {
		return fmt.Errorf("failed to build stream request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to simulator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("simulator stream returned HTTP %d", resp.StatusCode)
	}

	onConnect()
	w.store.SetSocketConnected(true)
	defer w.store.SetSocketConnected(false)

	w.log.Info().Str("url", w.baseURL).Msg("simulator status stream connected")

	dec := json.NewDecoder(resp.Body)
	for {
		var event StatusEvent
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("simulator stream closed")
			}
			return fmt.Errorf("failed to decode status event: %w", err)
		}
		w.apply(ctx, event)
	}
}

// apply records an event against the store, ignoring events for sessions
// other than the active one.
func (w *Watcher) apply(ctx context.Context, event StatusEvent) {
	status, err := session.ParseStatus(event.Status)
	if err != nil {
		w.log.Warn().Str("status", event.Status).Msg("ignoring unknown status event")
		return
	}

	current, ok := w.store.SessionID()
	if !ok || current != event.SessionID {
		w.log.Debug().
			Str("event_session_id", event.SessionID).
			Msg("ignoring status event for inactive session")
		return
	}

	w.log.Info().
		Str("session_id", event.SessionID).
		Str("status", string(status)).
		Msg("applying pushed status transition")
	w.store.UpdateStatus(ctx, status)
}
