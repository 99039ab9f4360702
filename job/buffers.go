package job

// The scoop holds input that arrived in pieces too small for the
// current state, the tube holds output that didn't fit in the caller's
// buffer. States only run once the tube is empty, so it never holds
// more than one state's worth of output.

// drain copies as much of the tube as possible into the output cursor,
// and returns true if the tube is now empty.
func (j *Job) drain() bool {
	if len(j.tube) == 0 {
		return true
	}

	n := copy(j.out.Bytes(), j.tube)
	j.out.Advance(n)
	if n == len(j.tube) {
		j.tube = j.tube[:0]
		return true
	}

	j.tube = append(j.tube[:0], j.tube[n:]...)
	return false
}

// emit queues p for output. It goes straight to the output cursor when
// it has room, the rest waits in the tube.
func (j *Job) emit(p []byte) {
	if len(j.tube) == 0 {
		n := copy(j.out.Bytes(), p)
		j.out.Advance(n)
		p = p[n:]
	}
	j.tube = append(j.tube, p...)
}

// pending returns the number of input bytes available to states,
// scooped or not.
func (j *Job) pending() int {
	return len(j.scoop) + j.in.Avail()
}

// gather returns n contiguous input bytes, consuming them, or nil if
// they are not all available yet. Whatever input is there is scooped,
// so the caller can report Blocked with the input cursor drained.
// With short set and no more input coming, gather returns the last
// bytes even if there are fewer than n.
// The returned slice is only valid until the next gather.
func (j *Job) gather(n int, short bool) []byte {
	if len(j.scoop) == 0 && j.in.Avail() >= n {
		p := j.in.Bytes()[:n]
		j.in.Advance(n)
		return p
	}

	want := n - len(j.scoop)
	avail := j.in.Bytes()
	if len(avail) > want {
		avail = avail[:want]
	}
	j.scoop = append(j.scoop, avail...)
	j.in.Advance(len(avail))

	if len(j.scoop) == n || (short && j.eof && j.in.Avail() == 0 && len(j.scoop) > 0) {
		p := j.scoop
		j.scoop = j.scoop[:0]
		return p
	}
	return nil
}

// starved returns the result for a state whose gather came up short:
// Blocked if more input may come, a truncation failure otherwise.
func (j *Job) starved(what string) Result {
	if !j.eof {
		return Blocked
	}
	return j.fail(InputEnded, errEnded(what, len(j.scoop)))
}
