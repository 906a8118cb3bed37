// Package emulator implements a device backend that runs host replicas of
// compute kernels. Commands execute in order at enqueue time; work-groups of
// a dispatch run concurrently unless the kernel is marked Serial.
package emulator

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/log"
)

var (
	ErrBufferSize     = errors.New("emulator: invalid buffer size")
	ErrUnknownKernel  = errors.New("emulator: unknown kernel")
	ErrWorkSize       = errors.New("emulator: invalid work size")
	ErrForeignBuffer  = errors.New("emulator: buffer belongs to another backend")
	ErrReleasedBuffer = errors.New("emulator: buffer has been released")
	ErrKernelPanic    = errors.New("emulator: kernel panicked")
)

// Config holds the emulated device limits.
type Config struct {
	// Device name reported to the context.
	Name string

	// Number of command queues.
	NumQueues int

	// Max number of work items per work-group.
	MaxWorkGroupSize int

	// Per-kernel work-group limits, keyed by kernel name. Entries above
	// MaxWorkGroupSize are ignored.
	KernelWorkGroupSize map[string]int

	// Max size of a single allocation in bytes.
	MaxBufferSize int

	// Max number of work-groups running concurrently.
	Workers int

	// If set, invoked before every allocation; a non-nil error fails it.
	AllocHook func(size int) error
}

// Default emulator configuration.
func DefaultConfig() Config {
	return Config{
		Name:             "emulated device",
		NumQueues:        2,
		MaxWorkGroupSize: 256,
		MaxBufferSize:    256 << 20,
		Workers:          runtime.GOMAXPROCS(0),
	}
}

// QueueStats counts the commands processed by a queue.
type QueueStats struct {
	Dispatches int
	Barriers   int
	Finishes   int
	Reads      int
	Writes     int
	Copies     int
}

// Backend is an emulated compute device.
type Backend struct {
	logger log.Logger
	cfg    Config
	queues []QueueStats
}

// Create a new emulated backend. Zero config fields are replaced with their
// default values.
func New(cfg Config) *Backend {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.NumQueues <= 0 {
		cfg.NumQueues = def.NumQueues
	}
	if cfg.MaxWorkGroupSize <= 0 {
		cfg.MaxWorkGroupSize = def.MaxWorkGroupSize
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = def.MaxBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	return &Backend{
		logger: log.New("emulator"),
		cfg:    cfg,
		queues: make([]QueueStats, cfg.NumQueues),
	}
}

func (b *Backend) Name() string { return b.cfg.Name }
func (b *Backend) NumQueues() int { return b.cfg.NumQueues }
func (b *Backend) MaxWorkGroupSize() int { return b.cfg.MaxWorkGroupSize }
func (b *Backend) MaxBufferSize() int { return b.cfg.MaxBufferSize }

// Get the command statistics for a queue.
func (b *Backend) QueueStats(queue int) QueueStats {
	return b.queues[queue]
}

// Allocate a zeroed buffer.
func (b *Backend) Allocate(size int, usage device.Usage) (device.Buffer, error) {
	if size <= 0 || size > b.cfg.MaxBufferSize {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrBufferSize, size, b.cfg.MaxBufferSize)
	}
	if b.cfg.AllocHook != nil {
		if err := b.cfg.AllocHook(size); err != nil {
			return nil, err
		}
	}

	return newBuffer(b, size), nil
}

var kernelDeclRegex = `__kernel\s+void\s+%s\s*\(`

// Create host kernels for the given names. Each name must have a host
// replica in the program and a matching entry point in its source.
func (b *Backend) Compile(p *device.Program, names []string) ([]device.Kernel, error) {
	kernels := make([]device.Kernel, 0, len(names))
	for _, name := range names {
		host, ok := p.Host[name]
		if !ok || host.Run == nil {
			return nil, fmt.Errorf("%w: %s has no host replica for %s", ErrUnknownKernel, p.Name, name)
		}
		if p.Source != "" && !regexp.MustCompile(fmt.Sprintf(kernelDeclRegex, regexp.QuoteMeta(name))).MatchString(p.Source) {
			return nil, fmt.Errorf("%w: %s source does not declare %s", ErrUnknownKernel, p.Name, name)
		}

		kernels = append(kernels, &kernel{
			backend: b,
			name:    name,
			host:    host,
			args:    make([]interface{}, host.Args),
		})
	}

	b.logger.Debugf("compiled %d kernel(s) from program %s", len(kernels), p.Name)
	return kernels, nil
}

// Commands run at enqueue time so a barrier only needs to be counted.
func (b *Backend) Barrier(queue int) error {
	b.queues[queue].Barriers++
	return nil
}

func (b *Backend) Finish(queue int) error {
	b.queues[queue].Finishes++
	return nil
}

func (b *Backend) Close() error {
	return nil
}
