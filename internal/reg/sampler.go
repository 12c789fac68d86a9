package reg

import (
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"go.bug.st/serial"
)

// Sampler produces one vector of byte-valued samples per call. Each byte must
// be uniform over [0,255] and independent across positions and calls. A call
// must not block indefinitely; implementations surface source failures as
// errors and leave retry policy to the engine.
type Sampler interface {
	Sample(width int) ([]byte, error)
}

// PseudoSampler draws bytes from a PCG-backed software generator. It is the
// default source and stands in for real entropy hardware.
type PseudoSampler struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewPseudoSampler creates a deterministic software sampler from a seed.
// Tests use fixed seeds; production callers can seed from the clock.
func NewPseudoSampler(seed uint64) *PseudoSampler {
	return &PseudoSampler{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample fills a fresh buffer eight bytes at a time from the generator.
func (s *PseudoSampler) Sample(width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("sample width must be positive, got %d: %w", width, ErrInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, width)
	for i := 0; i < width; i += 8 {
		v := s.r.Uint64()
		for j := i; j < i+8 && j < width; j++ {
			out[j] = byte(v)
			v >>= 8
		}
	}
	return out, nil
}

// SerialSampler reads raw entropy from a hardware RNG presented as a serial
// device (a TrueRNG-style dongle). The device streams random bytes
// continuously; a sample is just the next width bytes.
type SerialSampler struct {
	mu   sync.Mutex
	port io.ReadCloser
}

// OpenSerialSampler opens the entropy device at the given path.
func OpenSerialSampler(path string) (*SerialSampler, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open entropy device %s: %w", path, err)
	}
	return &SerialSampler{port: port}, nil
}

// NewSerialSampler wraps an already-open byte stream. Tests substitute an
// in-memory reader here.
func NewSerialSampler(port io.ReadCloser) *SerialSampler {
	return &SerialSampler{port: port}
}

// Sample reads exactly width bytes from the device.
func (s *SerialSampler) Sample(width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("sample width must be positive, got %d: %w", width, ErrInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, width)
	if _, err := io.ReadFull(s.port, out); err != nil {
		return nil, fmt.Errorf("failed to read from entropy device: %w", err)
	}
	return out, nil
}

// Close releases the serial port.
func (s *SerialSampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
