package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"entregaflow-api/domain"
)

type activityJob struct {
	event domain.ActivityEvent
}

var (
	once           sync.Once
	jobs           chan activityJob
	workerCount    int
	jobBuf         int
	deliverTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalStore    Storage
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownActivitySender stops worker goroutines and clears shared state. It
// is intended for tests.
func shutdownActivitySender() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalStore = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	deliverTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initActivitySender(store Storage, logger *log.Logger) {
	once.Do(func() {
		globalStore = store
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalLog = logger

		workerCount = envInt("ACTIVITY_WORKERS", 8)
		jobBuf = envInt("ACTIVITY_BUFFER", 1024)
		deliverTimeout = envDur("ACTIVITY_TIMEOUT", 30*time.Second)
		handoffTimeout = envDur("ACTIVITY_HANDOFF_TIMEOUT", 10*time.Millisecond)

		jobs = make(chan activityJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go activityWorker(i, jobs)
		}
		globalLog.Infof("activity sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, deliverTimeout, handoffTimeout)
	})
}

func activityWorker(id int, jobCh <-chan activityJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, deliverTimeout)
		err := globalStore.EnqueueActivity(ctx, j.event)
		cancel()

		if err != nil {
			globalLog.Errorf("activity delivery failed, err: %v, agency: %s, action: %s, worker: %d", err, j.event.AgencyID, j.event.Action, id)
		}
	}
}

func tryEnqueueActivity(job activityJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan activityJob, job activityJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan activityJob, job activityJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}

// recordActivity hands the event to the background senders, falling back to
// an inline delivery when the buffer is saturated. Activity delivery is best
// effort: a failure is logged and never fails the mutation that produced it.
func recordActivity(store Storage, ev domain.ActivityEvent) {
	if tryEnqueueActivity(activityJob{event: ev}) {
		return
	}

	if globalLog != nil {
		globalLog.Warn("activity buffer saturated; delivering inline")
	}

	timeout := deliverTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(bg, timeout)
	defer cancel()
	if err := store.EnqueueActivity(ctx, ev); err != nil && globalLog != nil {
		globalLog.Errorf("inline activity delivery failed: %v", err)
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
