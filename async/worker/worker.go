package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	bigquery "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"

	"github.com/rounds/go-bqdestination/lib"
	"github.com/rounds/go-bqdestination/lib/errors"
)

// An Inserter is a single asynchronous BigQuery streamer.
// It queues insert requests and sends them to BigQuery in bulk.
type Inserter interface {
	QueueRequest(*lib.Request)
	Start()
	Stop() <-chan struct{}
}

// A Worker is a single async BigQuery streamer (stream inserter),
// queuing insertAll requests and sending them to BigQuery in bulk.
//
// Queued requests to the same table are merged into a single insertAll call.
type Worker struct {
	// HTTP client used to send requests.
	// Requests carry their own Authorization header.
	client *http.Client

	// Upon invoking Start(), the worker will fetch requests from this channel,
	// and queue them into an internal requests queue.
	RequestChan chan *lib.Request

	// Set when RequestChan is shared with other workers.
	sharedRequestChan bool

	// Internal list to queue requests for stream insert.
	// Flushed once full, see SetQueueSize().
	Requests []*lib.Request

	// Errors are reported to this channel.
	ErrorChan chan error

	// Max delay between flushes to BigQuery.
	MaxDelay time.Duration

	// Sleep delay after a failed insert and before retry.
	SleepBeforeRetry time.Duration

	// Maximum retries of a table insert after server errors, or rows marked
	// "stopped" or "timeout".
	MaxRetryInsert int

	// Shutdown channel to stop Start() execution.
	StopChan chan struct{}

	// Used to notify the Start() loop has stopped and returned.
	StoppedChan chan struct{}
}

var _ Inserter = (*Worker)(nil)

// New returns a new Worker.
func New(client *http.Client, options ...OptionFunc) (*Worker, error) {
	if client == nil {
		return nil, stderrors.New("http client is nil")
	}

	w := Worker{
		client:           client,
		RequestChan:      make(chan *lib.Request, DefaultQueueSize),
		Requests:         make([]*lib.Request, 0, DefaultQueueSize),
		MaxDelay:         DefaultMaxDelay,
		SleepBeforeRetry: DefaultSleepBeforeRetry,
		MaxRetryInsert:   DefaultMaxRetryInsert,
		ErrorChan:        make(chan error, DefaultErrorBufferSize),
		StopChan:         make(chan struct{}),
		// Buffer size of 1 so Start() won't block on notifying it has returned.
		StoppedChan: make(chan struct{}, 1),
	}

	// Override defaults with options if given.
	for _, option := range options {
		if err := option(&w); err != nil {
			return nil, err
		}
	}

	return &w, nil
}

// Start reads requests from RequestChan and queues them internally,
// in a background goroutine.
// It flushes to BigQuery when the queue is filled (see SetQueueSize())
// or timer has expired (according to MaxDelay).
//
// NOTE the read-insert-flush loop never stops until Stop() is called.
func (w *Worker) Start() {
	go func(w *Worker) {
		// Notify on return.
		defer func(stopped chan<- struct{}) { close(stopped) }(w.StoppedChan)

		for {
			// Flush and reset timer when one of the following signals (channels) fire:
			select {
			case <-w.StopChan:
				w.drain()
				w.Flush()
				return
			case <-time.After(w.MaxDelay):
				w.Flush()
			case r := <-w.RequestChan:
				w.Requests = append(w.Requests, r)

				// Don't flush if slice isn't full.
				if len(w.Requests) < cap(w.Requests) {
					continue
				}

				w.Flush()
			}
		}
	}(w)
}

// drain queues requests left in RequestChan without blocking,
// so they are flushed on stop.
func (w *Worker) drain() {
	for {
		select {
		case r := <-w.RequestChan:
			w.Requests = append(w.Requests, r)
		default:
			return
		}
	}
}

// Stop closes stop channel, causing Start()'s infinite loop to stop.
// It returns a notification channel, which will be closed once the Start()
// loop has returned.
func (w *Worker) Stop() <-chan struct{} {
	// Notify Start() loop to return.
	close(w.StopChan)
	return w.StoppedChan
}

// Flush sends all queued requests to BigQuery and resets the requests queue.
//
// NOTE Flush is not safe to call while the Start() loop is running.
func (w *Worker) Flush() {
	if len(w.Requests) > 0 {
		w.InsertAll()
	}

	// Reset requests queue.
	w.Requests = w.Requests[:0]
}

// QueueRequest sends a single insert request to the request channel,
// which will be queued and inserted in bulk with other queued requests.
func (w *Worker) QueueRequest(req *lib.Request) { w.RequestChan <- req }

// InsertAll inserts all queued requests' rows to BigQuery.
// Each table is inserted separately, according to BigQuery's requirements.
// Insert errors are reported to the error channel.
func (w *Worker) InsertAll() {
	// Group rows by table.
	// Necessary because each insertAll() call has to be for a single table.
	ts := Tables{}
	for _, req := range w.Requests {
		if err := ts.Add(req); err != nil {
			w.ErrorChan <- err
		}
	}

	for key, t := range ts {
		w.insertTable(key, t)
	}
}

// insertTable inserts a single table in bulk,
// and retries insert on certain errors.
//
// Server errors, and responses marking rows as "stopped" or "timeout",
// count against MaxRetryInsert. Rejected rows are dropped and the rest
// re-sent, without counting against it.
func (w *Worker) insertTable(key TableKey, t Table) {
	for attempt := 0; ; attempt++ {
		if len(t) == 0 {
			return
		}

		res, err := w.InsertTable(key, t)

		// Retry on certain HTTP errors.
		retry := w.shouldRetryInsertAfterError(err)
		if err == nil {
			// Retry if insert was rejected due to bad rows.
			// Occurrence of bad rows do not count against retries,
			// as this means we're trying to insert bad data to BigQuery.
			var rejected []int64
			if t, rejected, retry = w.filterRejectedRows(res, key.URL, t); len(rejected) > 0 {
				attempt--
				continue
			}
		}
		if !retry {
			return
		}

		if attempt >= w.MaxRetryInsert {
			w.ErrorChan <- errors.NewTooManyFailedInsertRetriesError(attempt+1, key.URL)
			return
		}

		// Retry after HTTP errors usually mean to retry after a certain pause.
		// See the following link for more info:
		// https://cloud.google.com/bigquery/troubleshooting-errors
		time.Sleep(w.SleepBeforeRetry)
	}
}

// InsertTable sends a single insertAll request with all rows of t.
func (w *Worker) InsertTable(key TableKey, t Table) (*bigquery.TableDataInsertAllResponse, error) {
	body, err := json.Marshal(&bigquery.TableDataInsertAllRequest{
		Kind: "bigquery#tableDataInsertAllRequest",
		Rows: t,
	})
	if err != nil {
		return nil, err
	}

	req := lib.Request{
		Method: http.MethodPost,
		URL:    key.URL,
		Headers: []lib.Header{
			{Name: "Authorization", Value: key.Authorization},
			{Name: "Content-Type", Value: "application/json"},
		},
		Body: string(body),
	}

	return Do(context.Background(), w.client, &req)
}

// Do executes an insertAll request descriptor and decodes its response.
// Non-2xx responses are returned as *googleapi.Error.
func Do(ctx context.Context, client *http.Client, req *lib.Request) (*bigquery.TableDataInsertAllResponse, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer googleapi.CloseBody(res)

	if err := googleapi.CheckResponse(res); err != nil {
		return nil, err
	}

	var r bigquery.TableDataInsertAllResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// shouldRetryInsertAfterError checks for insert HTTP response errors,
// and returns true if insert should be retried.
// See the following url for more info:
// https://cloud.google.com/bigquery/troubleshooting-errors
func (w *Worker) shouldRetryInsertAfterError(err error) (shouldRetry bool) {
	if err == nil {
		return false
	}

	// Retry on GoogleAPI HTTP server error (500, 503).
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			shouldRetry = true
		}
	}

	// Report and don't retry for any other response codes,
	// or if not a Google API response at all.
	w.ErrorChan <- err

	return
}

// filterRejectedRows checks for per-row responses,
// removes rejected rows from t, and returns the filtered table and the
// indexes of removed rows.
// retry reports whether any row wasn't inserted, in which case the filtered
// table must be sent again.
//
// Rows are rejected if BigQuery insert response marked them with any reason
// other than "stopped" or "timeout". Rows marked "stopped" were valid but
// not inserted, since another row failed. Rows marked "timeout" may not have
// been inserted. See the following url for further info:
// https://cloud.google.com/bigquery/streaming-data-into-bigquery#troubleshooting
func (w *Worker) filterRejectedRows(
	res *bigquery.TableDataInsertAllResponse,
	url string,
	t Table) (filtered Table, rejected []int64, retry bool) {

	if res == nil || len(res.InsertErrors) == 0 {
		return t, nil, false
	}

	for _, rowErrors := range res.InsertErrors {
		// Each row can have several errors, and is removed once.
		filter := false
		for _, rowError := range rowErrors.Errors {
			switch rowError.Reason {
			// Nothing wrong with the row itself.
			case "stopped", "timeout":

			// Filter and report everything else.
			default:
				if !filter {
					rejected = append(rejected, rowErrors.Index)
					filter = true
				}
				w.ErrorChan <- errors.NewRowError(*rowError, rowErrors.Index, url)
			}
		}
	}

	if len(rejected) == 0 {
		return t, nil, true
	}
	return filterRowsFromTable(rejected, t), rejected, true
}

// filterRowsFromTable returns a new table without the rows at the given
// indexes, keeping the remaining rows' order.
func filterRowsFromTable(indexes []int64, t Table) Table {
	remove := make(map[int64]struct{}, len(indexes))
	for _, i := range indexes {
		remove[i] = struct{}{}
	}

	filtered := make(Table, 0, len(t))
	for i, r := range t {
		if _, ok := remove[int64(i)]; !ok {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
