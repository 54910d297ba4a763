// Here be option functions for constructing a new Worker.

package worker

import (
	"errors"
	"time"

	"github.com/rounds/go-bqdestination/lib"
)

const (
	DefaultErrorBufferSize  = 20
	DefaultQueueSize        = 500
	DefaultMaxDelay         = 5 * time.Second
	DefaultMaxRetryInsert   = 3
	DefaultSleepBeforeRetry = 5 * time.Second
)

type OptionFunc func(*Worker) error

// SetQueueSize sets the amount of insert requests queued before they are
// flushed, whatever table they target.
//
// Requests built by the insert package hold a single row each, so this is
// also the maximum amount of rows sent per flush.
// The worker's own request channel is resized to match, unless a shared one
// was set by SetRequestChannel.
//
// NOTE value must be a positive int.
func SetQueueSize(size int) OptionFunc {
	return func(w *Worker) error {
		if size <= 0 {
			return errors.New("queue size must be a positive int")
		}
		w.Requests = make([]*lib.Request, 0, size)
		if !w.sharedRequestChan {
			w.RequestChan = make(chan *lib.Request, size)
		}
		return nil
	}
}

// SetMaxDelay sets the maximum time a queued request waits before being
// flushed.
//
// NOTE value must be a positive time.Duration.
func SetMaxDelay(delay time.Duration) OptionFunc {
	return func(w *Worker) error {
		if delay <= 0 {
			return errors.New("max delay must be a positive time.Duration")
		}
		w.MaxDelay = delay
		return nil
	}
}

// SetRetry sets how a table insert is retried after a server error (500,
// 503), or rows marked "stopped" or "timeout": up to maxRetries times,
// sleeping in between. The table's rows are dropped afterwards.
//
// NOTE maxRetries must be a non-negative int, and sleep a positive
// time.Duration.
func SetRetry(maxRetries int, sleep time.Duration) OptionFunc {
	return func(w *Worker) error {
		switch {
		case maxRetries < 0:
			return errors.New("max retries must be a non-negative int")
		case sleep <= 0:
			return errors.New("sleep before retry must be a positive time.Duration")
		}
		w.MaxRetryInsert = maxRetries
		w.SleepBeforeRetry = sleep
		return nil
	}
}

// SetErrorChannel sets the channel insert and row errors are reported to.
//
// Errors must be read from this channel, otherwise the worker blocks.
func SetErrorChannel(errChan chan error) OptionFunc {
	return func(w *Worker) error {
		if errChan == nil {
			return errors.New("error channel is nil")
		}
		w.ErrorChan = errChan
		return nil
	}
}

// SetRequestChannel makes the worker read requests from reqChan,
// shared with other workers of a Streamer.
func SetRequestChannel(reqChan chan *lib.Request) OptionFunc {
	return func(w *Worker) error {
		if reqChan == nil {
			return errors.New("request channel is nil")
		}
		w.RequestChan = reqChan
		w.sharedRequestChan = true
		return nil
	}
}
