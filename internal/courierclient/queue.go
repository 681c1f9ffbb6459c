package courierclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// errNotHead is returned by Send when older entries are still queued.
var errNotHead = errors.New("entry is not at the head of the queue")

// Submitter delivers one queued action to the server. key is stable for the
// entry across retries.
type Submitter interface {
	SubmitAction(ctx context.Context, a Action, key string) error
}

// DrainReport summarises one drain pass.
type DrainReport struct {
	Sent      int
	Dropped   int
	Remaining int
}

// Queue replays actions in the order they were recorded.
type Queue struct {
	store  *Store
	device string
	logger logx.Logger
	now    func() time.Time

	// один drainer за раз: entry N+1 не уходит, пока N не разрешён
	mu sync.Mutex
}

// NewQueue creates a Queue over store.
func NewQueue(store *Store, deviceID string, logger logx.Logger) *Queue {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Queue{store: store, device: deviceID, logger: logger, now: time.Now}
}

// Enqueue records a.
func (q *Queue) Enqueue(a Action) (Entry, error) {
	return q.store.Append(a, q.now())
}

// Len returns the number of pending entries.
func (q *Queue) Len() (int, error) {
	return q.store.Len()
}

// Key is the idempotency key the entry is submitted with.
func (q *Queue) Key(seq uint64) string {
	return fmt.Sprintf("%s-%d", q.device, seq)
}

// Drain submits entries in sequence order until the queue is empty or an
// entry fails with a retryable error. The failed entry stays first.
func (q *Queue) Drain(ctx context.Context, s Submitter) (DrainReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var rep DrainReport
	for {
		if err := ctx.Err(); err != nil {
			rep.Remaining, _ = q.store.Len()
			return rep, err
		}
		e, err := q.store.First()
		if err != nil {
			return rep, err
		}
		if e == nil {
			return rep, nil
		}

		dropped, err := q.submit(ctx, *e, s)
		switch {
		case dropped:
			rep.Dropped++
		case err != nil:
			rep.Remaining, _ = q.store.Len()
			return rep, err
		default:
			rep.Sent++
		}
	}
}

// Send submits e directly when it is the oldest pending entry. Otherwise it
// returns errNotHead and leaves e for the next drain.
func (q *Queue) Send(ctx context.Context, e Entry, s Submitter) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	head, err := q.store.First()
	if err != nil {
		return err
	}
	if head == nil || head.Seq != e.Seq {
		return errNotHead
	}
	_, err = q.submit(ctx, e, s)
	return err
}

// submit resolves one entry. A terminal rejection removes the entry and
// returns dropped together with the rejection.
func (q *Queue) submit(ctx context.Context, e Entry, s Submitter) (bool, error) {
	err := s.SubmitAction(ctx, e.Action, q.Key(e.Seq))
	switch {
	case err == nil, errors.Is(err, apperr.ErrDuplicateRequest):
		// duplicate: сервер уже применил, потерялся только ответ
		if rmErr := q.store.Remove(e.Seq); rmErr != nil {
			return false, rmErr
		}
		return false, nil
	case isDroppable(err):
		q.logger.Warn("queued action rejected, dropping",
			logx.Int64("seq", int64(e.Seq)),
			logx.Int64("order_id", e.Action.OrderID),
			logx.String("status", e.Action.Status),
			logx.String("code", apperr.Code(err)),
		)
		if rmErr := q.store.Remove(e.Seq); rmErr != nil {
			return false, rmErr
		}
		return true, err
	default:
		return false, err
	}
}

func isDroppable(err error) bool {
	return !errors.Is(err, apperr.ErrNetwork) && apperr.IsTerminal(err)
}
