package detour

import "github.com/sirupsen/logrus"

type config struct {
	encoding      Encoding
	memory        Memory
	boundaryCheck bool
	logger        logrus.FieldLogger
	owner         string
}

func newConfig(opts []Option) *config {
	c := &config{
		encoding: DefaultEncoding(),
		memory:   ProcessMemory(),
		owner:    "detour",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger()
	}
	return c
}

// Option configures a Detour.
type Option func(*config)

// WithEncoding selects how the jump is encoded. The default is
// DefaultEncoding().
func WithEncoding(e Encoding) Option {
	return func(c *config) {
		c.encoding = e
	}
}

// WithMemory replaces the memory being patched. The default is
// ProcessMemory().
func WithMemory(m Memory) Option {
	return func(c *config) {
		c.memory = m
	}
}

// WithBoundaryCheck decodes the instructions at the source and, if the patch
// ends part way through an instruction, pads it to the end of that
// instruction.
func WithBoundaryCheck() Option {
	return func(c *config) {
		c.boundaryCheck = true
	}
}

// WithLogger sets the logger for a single detour.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithOwner names the detour in the registry and in overlap errors.
func WithOwner(owner string) Option {
	return func(c *config) {
		c.owner = owner
	}
}
