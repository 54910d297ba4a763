// Here be option functions for constructing a new Streamer.

package async

import (
	"errors"

	"github.com/rounds/go-bqdestination/async/worker"
)

const (
	DefaultNumWorkers      = 10
	DefaultErrorBufferSize = 100
)

type OptionFunc func(*Streamer) error

// SetNumWorkers sets the amount of background workers.
//
// NOTE value must be a positive int.
func SetNumWorkers(workers int) OptionFunc {
	return func(s *Streamer) error {
		if workers <= 0 {
			return errors.New("number of workers must be a positive int")
		}
		s.numWorkers = workers
		return nil
	}
}

// SetErrorBufferSize sets the size of the error channel shared by all
// workers.
//
// NOTE value must be a non-negative int.
func SetErrorBufferSize(size int) OptionFunc {
	return func(s *Streamer) error {
		if size < 0 {
			return errors.New("error channel size must be a non-negative int")
		}
		s.errorBufferSize = size
		return nil
	}
}

// SetWorkerOptions sets options applied to every worker,
// e.g. worker.SetQueueSize() or worker.SetRetry().
// They are validated when the workers are created.
//
// NOTE request and error channels are always shared by the Streamer,
// so worker.SetRequestChannel() and worker.SetErrorChannel() are overridden.
func SetWorkerOptions(options ...worker.OptionFunc) OptionFunc {
	return func(s *Streamer) error {
		s.workerOptions = append(s.workerOptions, options...)
		return nil
	}
}
