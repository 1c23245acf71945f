package freqmeter

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// Serial is a frequency meter reached over a serial link: it polls the
// remote device for a period count over a connection kept open between
// polls, dropped on a read error and reopened on the next poll, with
// exponential backoff exactly the way comm.RemoteDevice
// does for the NKT laser sources this pattern is grounded on. The
// autotune package's own ERROR_TIMEOUT watchdog is what ultimately trips
// a genuinely dead link; backoff here exists only to keep a flaky link
// from thrashing reconnects in between those timeout windows.
type Serial struct {
	mu     sync.Mutex
	cfg    *serial.Config
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	pending    uint32
	hasPending bool
	lastErr    error
}

// NewSerial returns a Serial frequency meter reached over port at baud,
// unconnected until the first poll.
func NewSerial(port string, baud int, timeout time.Duration) *Serial {
	return &Serial{
		cfg: &serial.Config{Name: port, Baud: baud, ReadTimeout: timeout},
	}
}

func (s *Serial) open() error {
	if s.conn != nil {
		return nil
	}
	op := func() error {
		conn, err := serial.OpenPort(s.cfg)
		if err != nil {
			return err
		}
		s.conn = conn
		s.reader = bufio.NewReader(conn)
		return nil
	}
	return backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock,
	})
}

// Available attempts to open the link (if not already open) and poll one
// line from it; it reports false on any failure rather than erroring, the
// poll-style contract autotune.FreqMeter expects (a quiet meter just looks
// like "nothing yet" until ERROR_TIMEOUT elapses).
func (s *Serial) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(); err != nil {
		s.lastErr = err
		return false
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		s.lastErr = err
		s.conn.Close()
		s.conn = nil
		s.reader = nil
		return false
	}
	ticks, err := strconv.ParseUint(strings.TrimSpace(line), 10, 32)
	if err != nil {
		s.lastErr = fmt.Errorf("freqmeter: malformed sample %q: %w", line, err)
		return false
	}
	s.pending = uint32(ticks)
	s.hasPending = true
	return true
}

// Read consumes the sample made available by the last successful
// Available call.
func (s *Serial) Read() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasPending = false
	return s.pending
}

// LastError returns the most recent transport error, for diagnostics.
func (s *Serial) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close releases the underlying serial connection, if one is open.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}
