package mg

import (
	"bytes"
	"fmt"
	"gomode.sh/mgutil"
	"sync"
	"time"
)

const (
	taskAnimInerval = 500 * time.Millisecond
)

type Task struct {
	Title   string
	ShowNow bool
	NoEcho  bool
}

type TaskTicket struct {
	Task
	ID    string
	Start time.Time

	tracker *TaskTracker
}

func (ti *TaskTicket) Done() {
	if ti != nil && ti.tracker != nil {
		ti.tracker.done(ti.ID)
	}
}

// TaskTracker keeps track of running tasks and renders them as a status string,
// e.g. `Tasks ◔ goflymake main.go`.
//
// Every change of the status is published on C(); only the newest value is kept.
// A nil *TaskTracker is valid and tracks nothing.
type TaskTracker struct {
	mu      sync.Mutex
	id      uint64
	tickets []*TaskTicket
	buf     bytes.Buffer
	status  string
	q       *mgutil.ChanQ[string]
}

func NewTaskTracker() *TaskTracker {
	return &TaskTracker{q: mgutil.NewChanQ[string](1)}
}

// C returns the channel on which status changes are sent
func (tr *TaskTracker) C() <-chan string {
	if tr == nil {
		return nil
	}
	return tr.q.C()
}

func (tr *TaskTracker) Status() string {
	if tr == nil {
		return ""
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.status
}

func (tr *TaskTracker) Close() {
	if tr != nil {
		tr.q.Close()
	}
}

func (tr *TaskTracker) Begin(o Task) *TaskTicket {
	if tr == nil {
		return nil
	}

	defer tr.tick()

	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.id++
	t := &TaskTicket{
		Task:    o,
		ID:      fmt.Sprintf("@%d", tr.id),
		Start:   time.Now(),
		tracker: tr,
	}
	tr.tickets = append(tr.tickets, t)
	return t
}

func (tr *TaskTracker) done(id string) {
	defer tr.tick()

	tr.mu.Lock()
	defer tr.mu.Unlock()

	l := make([]*TaskTicket, 0, len(tr.tickets))
	for _, t := range tr.tickets {
		if t.ID != id {
			l = append(l, t)
		}
	}
	tr.tickets = l
}

func (tr *TaskTracker) tick() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	status, resched := tr.render()
	if status != tr.status {
		tr.status = status
		tr.q.Put(status)
	}
	if resched > 0 {
		time.AfterFunc(taskAnimInerval, tr.tick)
	}
}

func (tr *TaskTracker) render() (status string, fresh int) {
	if len(tr.tickets) == 0 {
		return "", 0
	}

	tr.buf.Reset()
	now := time.Now()
	tr.buf.WriteString("Tasks")
	initLen := tr.buf.Len()
	title := ""
	freshFrames := []string{"", " ◔", " ◑", " ◕"}
	staleFrame := " ●"
	for _, t := range tr.tickets {
		dur := now.Sub(t.Start)
		age := int(dur / time.Second)
		if age == 0 && (t.ShowNow || dur >= taskAnimInerval) {
			age = 1
		}
		if age < len(freshFrames) {
			fresh++
			if !t.NoEcho && title == "" && t.Title != "" {
				title = t.Title
			}
			tr.buf.WriteString(freshFrames[age])
		} else {
			tr.buf.WriteString(staleFrame)
		}
	}
	if tr.buf.Len() == initLen && title == "" {
		return "", fresh
	}
	if title != "" {
		tr.buf.WriteByte(' ')
		tr.buf.WriteString(title)
	}
	return tr.buf.String(), fresh
}
