package core

import (
	"fmt"
	"sync"
)

// JobTask is one unit of work for the job system. OnComplete and
// OnFailure run on the worker goroutine after Work returns.
type JobTask struct {
	Name       string
	Work       func() error
	OnComplete func()
	OnFailure  func(error)
}

// JobSystem is a fixed-size worker pool. Tasks are independent; the
// system provides no ordering between them.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	pending    sync.WaitGroup
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				if err := job.Work(); err != nil {
					LogError("job %q failed: %s", job.Name, err.Error())
					if job.OnFailure != nil {
						job.OnFailure(err)
					}
				} else if job.OnComplete != nil {
					job.OnComplete()
				}
				js.pending.Done()
			}
		}()
	}
}

/**
 * @brief Submits the provided job to be queued for execution.
 */
func (js *JobSystem) Submit(task JobTask) {
	js.pending.Add(1)
	js.jobQueue <- task
}

// WaitIdle blocks until every submitted task has finished.
func (js *JobSystem) WaitIdle() {
	js.pending.Wait()
}

/**
 * @brief Shuts the job system down, waiting for in-flight tasks.
 */
func (js *JobSystem) Shutdown() error {
	close(js.jobQueue)
	js.wg.Wait()
	return nil
}
