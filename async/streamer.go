// Package async hosts insert requests built by the insert package,
// and executes them in bulk via background workers.
package async

import (
	"errors"
	"net/http"
	"slices"
	"sync"

	"github.com/rounds/go-bqdestination/async/worker"
	"github.com/rounds/go-bqdestination/lib"
)

// A Streamer operates multiple background workers via goroutines.
// When a Streamer queues an insert request, this request is consequently read
// and queued by one of the workers.
// When a time threshold is reached by a worker, or when it queued enough
// requests, it stream inserts to BigQuery using InsertAll().
//
// This thresholds can be set by the option functions.
type Streamer struct {
	// BigQuery Worker slice.
	workers []*worker.Worker

	// Channel for sending requests to background Workers.
	requestChan chan *lib.Request

	// Errors are reported to this channel.
	errorChan chan error

	// The following are options, overridable by the option functions:

	// Amount of background workers to use.
	numWorkers int

	// Buffer size of the error channel.
	errorBufferSize int

	// Applied to every worker.
	workerOptions []worker.OptionFunc
}

// New returns a new Streamer.
//
// Requests carry their own Authorization header,
// so client doesn't need to be authenticated.
func New(client *http.Client, options ...OptionFunc) (*Streamer, error) {
	if client == nil {
		return nil, errors.New("http client is nil")
	}

	s := Streamer{
		numWorkers:      DefaultNumWorkers,
		errorBufferSize: DefaultErrorBufferSize,
	}

	// Override configuration defaults with options if given.
	for _, option := range options {
		if err := option(&s); err != nil {
			return nil, err
		}
	}

	// Initialize workers and assign them a common error channel.
	s.errorChan = make(chan error, s.errorBufferSize)
	s.workers = make([]*worker.Worker, s.numWorkers)
	for i := range s.workers {
		w, err := worker.New(client, append(slices.Clip(s.workerOptions), worker.SetErrorChannel(s.errorChan))...)
		if err != nil {
			return nil, err
		}
		s.workers[i] = w
	}

	// Assign a common request channel, once the worker queue size is known.
	//
	// NOTE Streamer request channel length is set as following to avoid
	// filling up in case workers get delayed with insert retries.
	s.requestChan = make(chan *lib.Request, cap(s.workers[0].Requests)*s.numWorkers)
	for _, w := range s.workers {
		if err := worker.SetRequestChannel(s.requestChan)(w); err != nil {
			return nil, err
		}
	}

	return &s, nil
}

// Start starts the workers.
//
// Workers will read queued requests, and insert them to BigQuery once either
// their max delay has passed, or their queue is full.
//
// Insert errors will be reported to the ErrorChan() channel.
func (s *Streamer) Start() {
	for _, w := range s.workers {
		w.Start()
	}
}

// Stop stops all workers.
// Stop blocks until all workers have inserted their remaining requests to
// BigQuery and stopped.
//
// After all workers have inserted and stopped, the ErrorChan() error channel
// is closed.
func (s *Streamer) Stop() {
	wg := sync.WaitGroup{}
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			// Block until worker has stopped.
			<-w.Stop()
		}(w)
	}
	wg.Wait()

	close(s.errorChan)
}

// QueueRequest queues a single insert request,
// which will be read and inserted by one of the workers.
func (s *Streamer) QueueRequest(req *lib.Request) { s.requestChan <- req }

// ErrorChan returns a chan error, where insert errors will be sent by
// workers.
//
// Messages to this channel must be handled, otherwise the Streamer will block.
func (s *Streamer) ErrorChan() <-chan error { return s.errorChan }
