package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/studykeep/studykeep/pkg/config"
)

// Flusher pushes one metric stream's pending local state to the remote
// store.
type Flusher interface {
	FlushPending(ctx context.Context) error
}

const (
	signalPoints    = "points"
	signalStudyTime = "study_time"
)

// Worker runs reconciler flushes off the request path. Handlers notify it
// after a mutating call; notifications for the same stream coalesce while a
// flush is queued. There is no timer and no backoff: a failed flush stays
// staged in its reconciler until the next mutating call notifies again.
type Worker struct {
	config *config.Config
	log    logger.Logger

	flushers map[string]Flusher

	queue          chan string
	shutdown       chan struct{}
	doneSweeping   chan struct{}
	doneProcessing chan struct{}

	pointsPending    chan struct{}
	studyTimePending chan struct{}
}

func New(cfg *config.Config, points, studyTime Flusher) *Worker {
	return &Worker{
		config: cfg,
		log:    logger.New(),

		flushers: map[string]Flusher{
			signalPoints:    points,
			signalStudyTime: studyTime,
		},

		queue:          make(chan string, 2),
		shutdown:       make(chan struct{}),
		doneSweeping:   make(chan struct{}),
		doneProcessing: make(chan struct{}),

		pointsPending:    make(chan struct{}, 1),
		studyTimePending: make(chan struct{}, 1),
	}
}

func (w *Worker) Start() {
	go w.sweep()
	go w.process()
}

// NotifyPoints requests an async points flush. Never blocks; a notification
// while one is already queued coalesces into it.
func (w *Worker) NotifyPoints() {
	select {
	case w.pointsPending <- struct{}{}:
	default:
	}
}

// NotifyStudyTime requests an async study-time flush.
func (w *Worker) NotifyStudyTime() {
	select {
	case w.studyTimePending <- struct{}{}:
	default:
	}
}

func (w *Worker) sweep() {
	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop queueing more flushes.
			w.doneSweeping <- struct{}{}
			return
		case <-w.pointsPending:
			w.queue <- signalPoints
		case <-w.studyTimePending:
			w.queue <- signalStudyTime
		}
	}
}

func (w *Worker) process() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case signal := <-w.queue:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{"stream": signal})
			ctx := log.WithContext(context.Background())

			flusher, ok := w.flushers[signal]
			if !ok {
				log.Error("can't find flusher for stream")
				continue
			}
			if err := flusher.FlushPending(ctx); err != nil {
				log.Err(err).Error("flush error")
				continue
			}
		}
	}
}

func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneSweeping
	<-w.doneProcessing
}
