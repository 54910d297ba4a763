//go:build integration
// +build integration

package worker

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rounds/go-bqdestination/auth"
	"github.com/rounds/go-bqdestination/event"
	"github.com/rounds/go-bqdestination/insert"
	"github.com/rounds/go-bqdestination/lib"
)

var (
	keyPath   = flag.String("key", "", "service account json key path, acquired via https://console.cloud.google.com")
	projectID = flag.String("project", "", "bigquery project id")
	datasetID = flag.String("dataset", "", "bigquery dataset id")
	tableID   = flag.String("table", "", "bigquery table id")

	serviceJSON []byte
)

func init() {
	flag.Parse()

	// Validate custom parameters.
	crash := true
SANITY:
	switch {
	case *keyPath == "":
		fmt.Println("missing key parameter")
	case *projectID == "":
		fmt.Println("missing project parameter")
	case *datasetID == "":
		fmt.Println("missing dataset parameter")
	case *tableID == "":
		fmt.Println("missing table parameter")
	default:
		var err error
		if serviceJSON, err = lib.ReadKeyFile(*keyPath); err != nil {
			fmt.Println(err)
			break SANITY
		}
		return
	}

	if crash {
		flag.Usage()
		os.Exit(2)
	}
}

// TestInsertTableToBigQuery tests stream inserting 2 events to BigQuery,
// with an access token exchanged for a signed assertion.
// The table must have the event columns: uuid, event_type, timestamp,
// timestamp_millis, timestamp_micros, consent, context, data.
//
// Usage: 'go test -v -tags=integration -key /path/to/key.json -project projectID -dataset datasetID -table tableID'
func TestInsertTableToBigQuery(t *testing.T) {
	t.Parallel()

	assert := assert.New(t)
	require := require.New(t)

	b, err := auth.New()
	require.NoError(err)
	token, err := b.TokenSource(context.Background(), http.DefaultClient, serviceJSON).Token()
	require.NoError(err)

	flushed := make(chan struct{}, 10)
	client := http.Client{
		Transport: NewNotifyTransport(
			http.DefaultTransport,
			// Notify "flushed" via channel on calling InsertAll().
			func(transport http.RoundTripper, req *http.Request) (*http.Response, error) {
				res, err := transport.RoundTrip(req)
				// NOTE notifying "flushed" after the request has been made.
				flushed <- struct{}{}
				return res, err
			})}

	// Set flush threshold to 2 so flush will happen immediately.
	w, err := New(&client, SetQueueSize(2), SetMaxDelay(1*time.Second), SetRetry(3, 1*time.Second))
	require.NoError(err)

	dst := insert.Destination{AccessToken: token.AccessToken, ProjectID: *projectID, DatasetID: *datasetID, TableID: *tableID}
	for i, typ := range []event.EventType{event.Page, event.Track} {
		now := time.Now()
		req, err := insert.BuildInsertRequest(event.Event{
			UUID:            uuid.New(),
			Type:            typ,
			Timestamp:       now.Unix(),
			TimestampMillis: now.UnixMilli(),
			TimestampMicros: now.UnixMicro(),
			Consent:         event.ConsentGranted,
			Context:         json.RawMessage(`{"integration": true}`),
			Data:            json.RawMessage(fmt.Sprintf(`{"i": %d}`, i)),
		}, dst)
		require.NoError(err)
		w.QueueRequest(req)
	}

	// Start the worker and wait enough time for the worker to flush.
	w.Start()
	select {
	case <-flushed:
	case <-time.After(10 * time.Second):
		assert.Fail("Insert wasn't called fast enough")
	}

	t.Log("Waiting for 5 seconds and making sure flush isn't called a second time")
	select {
	case <-flushed:
		require.Fail("Insert was called a second time")
	case <-time.After(5 * time.Second):
	}

	select {
	case <-w.Stop():
	case <-time.After(1 * time.Second):
		assert.Fail("Start() loop didn't stop fast enough")
	}

	select {
	case err := <-w.ErrorChan:
		assert.Fail("Error channel isn't empty", err)
	default:
	}
}

// NotifyTransport is a mock http.Transport, and implements http.RoundTripper
// interface.
//
// It notifies via channel that the RoundTripper() function was called,
// then calls and returns the embedded Transport.RoundTripper().
type NotifyTransport struct {
	transport http.RoundTripper
	roundTrip func(http.RoundTripper, *http.Request) (*http.Response, error)
}

func NewNotifyTransport(
	transport http.RoundTripper,
	roundTrip func(http.RoundTripper, *http.Request) (*http.Response, error)) *NotifyTransport {

	return &NotifyTransport{
		transport: transport,
		roundTrip: roundTrip}
}

func (t *NotifyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.roundTrip(t.transport, req)
}
