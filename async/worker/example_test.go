package worker

import (
	"log"
	"net/http"
	"time"

	"github.com/rounds/go-bqdestination/event"
	"github.com/rounds/go-bqdestination/insert"
)

// This example uses a single Worker.
// A single insert request is queued, and will be flushed once a time
// threshold has passed, or if the Worker is explicitly stopped.
//
// Requests carry their own Authorization header, so a plain http.Client is
// enough.
//
// You should probably use a Streamer, as it provides better concurrency and speed,
// but Worker is there if you need to.
func ExampleWorker() {
	// Init a new Worker.
	w, err := New(
		http.DefaultClient,
		SetQueueSize(500),           // Amount of requests queued before forcing insert to BigQuery.
		SetMaxDelay(1*time.Second),  // Time to pass between forcing insert to BigQuery.
		SetRetry(10, 1*time.Second)) // Failed insert retries, and the sleep between them, before discarding rows.

	if err != nil {
		log.Fatalln(err)
	}

	// Start the Worker in a background goroutine.
	w.Start()
	defer func() { <-w.Stop() }()

	// Build and queue a single insert request.
	// Insert will happen once "max delay" time has passed,
	// or the queue is full.
	req, err := insert.BuildInsertRequest(
		event.Event{Type: event.Track},
		insert.Destination{
			AccessToken: "access-token",
			ProjectID:   "project-id",
			DatasetID:   "dataset-id",
			TableID:     "table-id",
		})
	if err != nil {
		log.Fatalln(err)
	}

	w.QueueRequest(req)
}
