package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ftahirops/perfdiag/model"
)

// recordFrame is one session written to disk.
type recordFrame struct {
	Session *model.Session `json:"session"`
	Report  *model.Report  `json:"report,omitempty"`
}

// Recorder writes each analysed session to w as one JSON line.
type Recorder struct {
	writer *json.Encoder
	mu     sync.Mutex
}

// NewRecorder creates a recorder that writes JSON lines to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{writer: json.NewEncoder(w)}
}

// Record appends a session and, if present, the report derived from it.
func (r *Recorder) Record(session *model.Session, rep *model.Report) error {
	if session == nil {
		return fmt.Errorf("record: nil session")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Encode(recordFrame{Session: session, Report: rep}); err != nil {
		return fmt.Errorf("record session %s: %w", session.ID, err)
	}
	return nil
}

// maxFrameSize bounds a single recorded line.
const maxFrameSize = 64 << 20

// Player replays recorded sessions.
type Player struct {
	frames  []recordFrame
	skipped int
	idx     int
	mu      sync.Mutex
}

// NewPlayer reads a JSON lines recording. Malformed lines are skipped and
// counted; only read errors fail.
func NewPlayer(r io.Reader) (*Player, error) {
	p := &Player{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame recordFrame
		if err := json.Unmarshal(line, &frame); err != nil || frame.Session == nil {
			p.skipped++
			continue
		}
		p.frames = append(p.frames, frame)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return p, nil
}

// Len returns the number of sessions available.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// Skipped returns the number of malformed lines ignored.
func (p *Player) Skipped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

// Next returns the next recorded session and its stored report.
func (p *Player) Next() (*model.Session, *model.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.frames) {
		return nil, nil, false
	}
	f := p.frames[p.idx]
	p.idx++
	return f.Session, f.Report, true
}

// Replay re-analyses every remaining session with d.
func (p *Player) Replay(d *Diagnostics, opts Options) []*Result {
	var out []*Result
	for {
		sess, _, ok := p.Next()
		if !ok {
			return out
		}
		out = append(out, d.Analyze(sess, opts))
	}
}
