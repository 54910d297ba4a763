// Command bqdestination reads newline-delimited JSON events from stdin,
// and stream inserts them to a BigQuery table.
//
// Configuration is read from the environment, see internal/config.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/oauth2"

	"github.com/rounds/go-bqdestination/async"
	"github.com/rounds/go-bqdestination/auth"
	"github.com/rounds/go-bqdestination/component"
	"github.com/rounds/go-bqdestination/event"
	"github.com/rounds/go-bqdestination/insert"
	"github.com/rounds/go-bqdestination/internal/config"
	"github.com/rounds/go-bqdestination/internal/logging"
	"github.com/rounds/go-bqdestination/lib"
)

// Max size of a single event line.
const maxLineSize = 1 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, r io.Reader) error {
	serviceJSON, err := lib.ReadKeyFile(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	mapper, err := insert.New(insert.SetInsertID(cfg.InsertID))
	if err != nil {
		return err
	}
	builder, err := auth.New()
	if err != nil {
		return err
	}
	guest := component.New(mapper, builder)

	// Fail fast on a bad key, before reading any event.
	if _, err := guest.Authenticate(map[string]string{component.SettingServiceJSON: string(serviceJSON)}); err != nil {
		return err
	}
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	ts := builder.TokenSource(ctx, client, serviceJSON)

	s, err := async.New(client, cfg.AsyncOptions()...)
	if err != nil {
		return err
	}
	s.Start()

	errDone := make(chan struct{})
	go func() {
		defer close(errDone)
		for err := range s.ErrorChan() {
			slog.Error("Insert failed", "error", err)
		}
	}()

	slog.Info("bqdestination started", "pid", os.Getpid(),
		"project", cfg.ProjectID, "dataset", cfg.DatasetID, "table", cfg.TableID)

	settings := map[string]string{
		insert.SettingProjectID: cfg.ProjectID,
		insert.SettingDatasetID: cfg.DatasetID,
		insert.SettingTableID:   cfg.TableID,
	}

	g := &gate{queue: s.QueueRequest}
	readDone := make(chan error, 1)
	go func() {
		n, err := process(ctx, r, guest, ts, settings, g.Queue)
		slog.Info("Finished reading events", "queued", n)
		readDone <- err
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down...")
	case err = <-readDone:
	}

	// Flush whatever was queued.
	// The reader may still be blocked on r, so stop it from queueing first.
	g.Close()
	s.Stop()
	<-errDone
	slog.Info("Shutdown complete")

	return err
}

// process reads newline-delimited events from r, and queues an insert
// request for each of them, until r is exhausted or ctx is done.
// It returns the amount of queued requests.
//
// Invalid events are logged and skipped. Token errors stop processing.
func process(
	ctx context.Context,
	r io.Reader,
	guest component.Guest,
	ts oauth2.TokenSource,
	settings map[string]string,
	queue func(*lib.Request)) (int, error) {

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	queued := 0
	for line := 1; scanner.Scan(); line++ {
		if ctx.Err() != nil {
			return queued, nil
		}

		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}

		var ev event.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			slog.Warn("Skipping invalid event", "line", line, "error", err)
			continue
		}

		token, err := ts.Token()
		if err != nil {
			return queued, fmt.Errorf("failed getting access token: %w", err)
		}

		s := maps.Clone(settings)
		s[auth.TokenProperty] = token.AccessToken

		req, err := component.Dispatch(guest, ev, s)
		if err != nil {
			slog.Warn("Skipping event", "line", line, "uuid", ev.UUID, "error", err)
			continue
		}

		slog.Debug("Queueing event", "line", line, "uuid", ev.UUID, "type", ev.Type.String())
		queue(req)
		queued++
	}

	return queued, scanner.Err()
}

// gate forwards requests to queue until closed.
// Requests queued afterwards are logged and dropped.
type gate struct {
	mu     sync.Mutex
	queue  func(*lib.Request)
	closed bool
}

func (g *gate) Queue(req *lib.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		slog.Warn("Dropping request queued after shutdown", "url", req.URL)
		return
	}
	g.queue(req)
}

// Close returns once no request is being forwarded.
func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
}
