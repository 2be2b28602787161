package ffmpeg

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/cutforge/pkg/util"
)

// ProgressStream yields progress events parsed from an ffmpeg diagnostic
// stream. Next returns io.EOF once the underlying reader is exhausted.
type ProgressStream interface {
	Next() (*Progress, error)
}

var (
	statsTime   = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	statsSpaces = regexp.MustCompile(`=\s+`)
)

// lineStream reads stderr one line at a time. It understands both the
// key=value blocks written by `-progress pipe:2` and the classic
// "frame= ... time=HH:MM:SS.xx ..." stats lines.
type lineStream struct {
	scanner *bufio.Scanner
	onLine  func(string)
	block   Progress
	inBlock bool
}

// NewProgressStream wraps r. onLine, when set, sees every raw line.
func NewProgressStream(r io.Reader, onLine func(string)) ProgressStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &lineStream{scanner: scanner, onLine: onLine}
}

func (s *lineStream) Next() (*Progress, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if s.onLine != nil {
			s.onLine(line)
		}

		if p, ok := parseStatsLine(line); ok {
			return p, nil
		}

		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		if key == "progress" {
			if !s.inBlock {
				continue
			}
			ev := s.block
			ev.Done = value == "end"
			s.block = Progress{}
			s.inBlock = false
			return &ev, nil
		}
		s.inBlock = applyKey(&s.block, key, value) || s.inBlock
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// splitKeyValue accepts single-token lines such as "out_time_us=1500000".
func splitKeyValue(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.ContainsAny(line, " \t") {
		return "", "", false
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok || key == "" {
		return "", "", false
	}
	return key, value, true
}

func applyKey(p *Progress, key, value string) bool {
	switch key {
	case "frame":
		p.Frame, _ = strconv.Atoi(value)
	case "fps":
		p.FPS, _ = strconv.ParseFloat(value, 64)
	case "bitrate":
		p.Bitrate = value
	case "speed":
		p.Speed = value
	case "out_time_us", "out_time_ms":
		// both keys carry microseconds
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.OutTime = time.Duration(us) * time.Microsecond
		}
	case "out_time":
		if p.OutTime == 0 {
			if d, err := util.ParseTimestamp(value); err == nil && d > 0 {
				p.OutTime = d
			}
		}
	default:
		return false
	}
	return true
}

// parseStatsLine handles "frame=  120 fps= 30 ... time=00:00:04.00 ... speed=1.2x".
func parseStatsLine(line string) (*Progress, bool) {
	if !strings.Contains(line, " ") {
		return nil, false
	}
	m := statsTime.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.ParseFloat(m[3], 64)

	p := &Progress{
		OutTime: time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute + util.Seconds(secs),
	}
	fields := strings.Fields(statsSpaces.ReplaceAllString(line, "="))
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "time" {
			continue
		}
		applyKey(p, key, value)
	}
	return p, true
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	n   int
	buf []byte
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) WriteLine(line string) {
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
