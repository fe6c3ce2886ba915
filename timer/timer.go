// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/wfunc/skullscore/logger"
)

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Scheduler runs callbacks after a delay, optionally repeating. Callbacks
// run on their own goroutine and must not block the caller for long.
type Scheduler struct {
	queue   TimerQueue
	tasks   map[int64]*TimerTask
	mutex   sync.Mutex
	nextId  int64
	wake    chan struct{}
	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
}

func NewScheduler() *Scheduler {
	s := &Scheduler{
		queue:  make(TimerQueue, 0),
		tasks:  make(map[int64]*TimerTask),
		nextId: 1,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	heap.Init(&s.queue)
	go s.process()
	return s
}

// AddTimer schedules callback after delay, then every interval when > 0.
func (s *Scheduler) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	s.mutex.Lock()
	task := &TimerTask{
		Id:       s.nextId,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	s.nextId++
	heap.Push(&s.queue, task)
	s.tasks[task.Id] = task
	s.mutex.Unlock()

	s.notify()
	return task.Id
}

// Every runs callback every interval, first after one interval.
func (s *Scheduler) Every(interval time.Duration, callback func()) int64 {
	return s.AddTimer(interval, interval, callback)
}

// RemoveTimer cancels a task; unknown ids are ignored.
func (s *Scheduler) RemoveTimer(timerId int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	task, ok := s.tasks[timerId]
	if !ok {
		return
	}
	delete(s.tasks, timerId)
	if task.index >= 0 {
		heap.Remove(&s.queue, task.index)
	}
}

// Len 待执行任务数
func (s *Scheduler) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.queue.Len()
}

// Stop ends the scheduling loop; pending tasks never fire.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) process() {
	defer close(s.done)

	t := time.NewTimer(time.Hour)
	defer t.Stop()

	for {
		s.mutex.Lock()
		now := time.Now()
		var due []*TimerTask
		for s.queue.Len() > 0 {
			task := s.queue[0]
			if task.Execute.After(now) {
				break
			}
			heap.Pop(&s.queue)
			due = append(due, task)

			if task.Interval > 0 {
				task.Execute = now.Add(task.Interval)
				heap.Push(&s.queue, task)
			} else {
				delete(s.tasks, task.Id)
			}
		}
		wait := time.Hour
		if s.queue.Len() > 0 {
			wait = s.queue[0].Execute.Sub(now)
		}
		s.mutex.Unlock()

		for _, task := range due {
			go run(task)
		}

		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(wait)

		select {
		case <-t.C:
		case <-s.wake:
		case <-s.stop:
			return
		}
	}
}

func run(task *TimerTask) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("timer task %d panicked: %v", task.Id, r)
		}
	}()
	task.Callback()
}
