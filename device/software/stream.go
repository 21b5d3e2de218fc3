package software

import "sync"

// command is one recorded unit of work.
type command func()

// newStream starts the worker that consumes recorded chunks. exec wraps the
// execution of each chunk, the device uses it to hold the submission lock.
func newStream(exec func(chunk []command)) *stream {
	s := &stream{
		exec: exec,
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mutex)
	go s.run()
	return s
}

// stream records commands on the calling goroutine and runs them, in order,
// on a single worker.
type stream struct {
	mutex sync.Mutex
	cond  *sync.Cond

	exec func(chunk []command)

	pending    []command
	chunks     [][]command
	dispatched uint64
	executed   uint64
	closed     bool

	done chan struct{}
}

// Record appends a command to the current chunk. It does not run until the
// chunk is flushed.
func (s *stream) Record(c command) {
	s.mutex.Lock()
	s.pending = append(s.pending, c)
	s.mutex.Unlock()
}

// Flush hands the current chunk to the worker and returns its sequence number.
func (s *stream) Flush() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.flushLocked()
}

func (s *stream) flushLocked() uint64 {
	if len(s.pending) == 0 || s.closed {
		return s.dispatched
	}
	s.chunks = append(s.chunks, s.pending)
	s.pending = nil
	s.dispatched++
	s.cond.Broadcast()
	return s.dispatched
}

// Synchronize flushes and waits until the worker is idle.
func (s *stream) Synchronize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	seq := s.flushLocked()
	for s.executed < seq && !s.closed {
		s.cond.Wait()
	}
}

// Idle reports whether every dispatched chunk has run and nothing is pending.
func (s *stream) Idle() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.pending) == 0 && s.executed == s.dispatched
}

// Close runs what was flushed, drops what was not and stops the worker.
func (s *stream) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.pending = nil
	s.cond.Broadcast()
	s.mutex.Unlock()
	<-s.done
}

func (s *stream) run() {
	defer close(s.done)
	for {
		s.mutex.Lock()
		for len(s.chunks) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.chunks) == 0 {
			s.mutex.Unlock()
			return
		}
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mutex.Unlock()

		s.exec(chunk)

		s.mutex.Lock()
		s.executed++
		s.cond.Broadcast()
		s.mutex.Unlock()
	}
}
