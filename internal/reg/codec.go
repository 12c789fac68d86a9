package reg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// TrialTag is the literal leading the per-trial record lines.
const TrialTag = "QBYTE"

// Log layout: one header line, then trial and event lines interleaved in the
// order they occurred. All lines are "\n"-terminated UTF-8.
//
//	ColorZ: 1.65 RotZ: 1.85 RNG: False True False
//	QBYTE,<v1>,...,<vN>,<millis>,<T|F>
//	color,<millis>
//	rotation,<millis>
//
// The sample width is not stored; a decoder infers it from the first trial
// line's field count. Booleans use the literals True/False.

// EncodeHeader renders the header line (without trailing newline) for the
// given parameters. The token layout is fixed: indices 1 and 3 carry the z
// values, indices 5..7 carry the three flags.
func EncodeHeader(p RunParams) string {
	return fmt.Sprintf("ColorZ: %s RotZ: %s RNG: %s %s %s",
		formatFloat(p.ColorZ), formatFloat(p.RotZ),
		formatBool(p.UseTrueRNG), formatBool(p.Halo), formatBool(p.Turbo))
}

// ParseHeader decodes a header line. Missing trailing tokens fall back to the
// documented defaults, so a header truncated at any point still yields a
// usable parameter set. Malformed numeric tokens keep their default.
// SampleWidth is not carried by the header; the caller fills it in from the
// first trial line, so the default width is returned here.
func ParseHeader(line string) RunParams {
	p := DefaultParams()

	tokens := strings.Fields(line)
	if len(tokens) > 1 {
		if f, err := strconv.ParseFloat(tokens[1], 64); err == nil {
			p.ColorZ = f
		}
	}
	if len(tokens) > 3 {
		if f, err := strconv.ParseFloat(tokens[3], 64); err == nil {
			p.RotZ = f
		}
	}
	if len(tokens) > 5 {
		p.UseTrueRNG = tokens[5] == "True"
	}
	if len(tokens) > 6 {
		p.Halo = tokens[6] == "True"
	}
	if len(tokens) > 7 {
		p.Turbo = tokens[7] == "True"
	}
	return p
}

// EncodeTrial renders one trial record line (without trailing newline).
func EncodeTrial(t Trial) string {
	var b strings.Builder
	b.WriteString(TrialTag)
	for _, v := range t.Values {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(v)))
	}
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(t.Timestamp, 10))
	if t.Turbo {
		b.WriteString(",T")
	} else {
		b.WriteString(",F")
	}
	return b.String()
}

// EncodeEvent renders one event record line (without trailing newline).
func EncodeEvent(e Event) string {
	return fmt.Sprintf("%s,%d", e.Kind, e.Timestamp)
}

// parseTrialLine decodes a trial record. Malformed numeric fields contribute
// zero rather than failing the line: partially-written logs stay readable.
func parseTrialLine(line string) Trial {
	parts := strings.Split(line, ",")

	t := Trial{}
	if len(parts) < 3 {
		return t
	}

	if ts, err := strconv.ParseInt(parts[len(parts)-2], 10, 64); err == nil {
		t.Timestamp = ts
	}
	t.Turbo = parts[len(parts)-1] == "T"

	t.Values = make([]byte, 0, len(parts)-3)
	for _, field := range parts[1 : len(parts)-2] {
		v, err := strconv.Atoi(field)
		if err != nil {
			v = 0
		}
		t.Values = append(t.Values, byte(v))
	}
	t.BitSum = BitSum(t.Values)
	return t
}

// Record is one decoded log line in file order: exactly one of Trial or
// Event is set.
type Record struct {
	Trial *Trial
	Event *Event
}

// Decode parses raw log lines into the run's parameters, its ordered record
// sequence and the full-file tallies. At most trialLimit trials are
// materialized as records (<= 0 means no limit), but every trial and event
// line is still counted, so the tallies stay coherent on truncated reads of
// long logs. Blank and unrecognised lines are skipped — that is the codec's
// whole robustness contract against half-written tails.
func Decode(lines []string, trialLimit int) (RunParams, []Record, EventCounts) {
	params := DefaultParams()
	var counts EventCounts
	if len(lines) == 0 {
		return params, nil, counts
	}

	params = ParseHeader(lines[0])

	var records []Record
	widthKnown := false
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, TrialTag+","):
			if !widthKnown {
				// Width is the field count minus the tag, timestamp
				// and turbo flag fields.
				params.SampleWidth = strings.Count(line, ",") - 2
				if params.SampleWidth < 1 {
					params.SampleWidth = DefaultSampleWidth
				}
				params.Turbo = strings.HasSuffix(line, ",T")
				widthKnown = true
			}
			counts.Trials++
			if trialLimit > 0 && counts.Trials > trialLimit {
				continue
			}
			t := parseTrialLine(line)
			records = append(records, Record{Trial: &t})

		case strings.HasPrefix(line, string(EventColor)+","):
			counts.Color++
			e := parseEventLine(line, EventColor)
			records = append(records, Record{Event: &e})

		case strings.HasPrefix(line, string(EventRotation)+","):
			counts.Rotation++
			e := parseEventLine(line, EventRotation)
			records = append(records, Record{Event: &e})
		}
	}
	return params, records, counts
}

func parseEventLine(line string, kind EventKind) Event {
	e := Event{Kind: kind}
	parts := strings.Split(line, ",")
	if len(parts) > 1 {
		if ts, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			e.Timestamp = ts
		}
	}
	return e
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// LogWriter appends canonical-format records to a trial log. Each line is
// written with a single Write call so a concurrent reader relying on the
// decoder's tolerant-skip behaviour never observes a torn line. One writer
// per log; the engine holds it exclusively for the lifetime of a run.
type LogWriter struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// CreateLog creates the log file and writes its header line. Creation fails
// if the file already exists: logs are written by at most one session.
func CreateLog(path string, p RunParams) (*LogWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create trial log: %w", err)
	}

	w := &LogWriter{f: f, path: path}
	if err := w.appendLine(EncodeHeader(p)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Path returns the log file path.
func (w *LogWriter) Path() string {
	return w.path
}

// AppendTrial appends one trial record.
func (w *LogWriter) AppendTrial(t Trial) error {
	return w.appendLine(EncodeTrial(t))
}

// AppendEvent appends one event record.
func (w *LogWriter) AppendEvent(e Event) error {
	return w.appendLine(EncodeEvent(e))
}

func (w *LogWriter) appendLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrLogClosed
	}
	if _, err := w.f.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to append to trial log: %w", err)
	}
	return nil
}

// Sync flushes written records to stable storage.
func (w *LogWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrLogClosed
	}
	return w.f.Sync()
}

// Close flushes and closes the log. Safe to call more than once.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush trial log: %w", err)
	}
	return w.f.Close()
}
