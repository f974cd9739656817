package e2e

import (
	"fmt"
	"testing"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/consumer"
	"github.com/downfa11-org/partq/pkg/queue"
)

// Context carries one scenario: its configuration, the live handles it
// has opened and everything the actions observed along the way.
type Context struct {
	t           *testing.T
	cfg         *config.Config
	queueName   string
	numMessages int

	writer  *queue.Queue
	readers map[string]*consumer.Consumer

	pushed    []string
	drained   map[string][]string
	peeked    map[string]string
	sweep     *queue.SweepResult
	writerErr error
}

type Actions struct {
	ctx *Context
}

type Consequences struct {
	ctx *Context
}

type Expectation func(*Context) error

func Given(t *testing.T) *Context {
	cfg := config.DefaultConfig()
	cfg.BaseDir = t.TempDir()

	return &Context{
		t:           t,
		cfg:         cfg,
		queueName:   "e2e",
		numMessages: 10,
		readers:     make(map[string]*consumer.Consumer),
		drained:     make(map[string][]string),
		peeked:      make(map[string]string),
	}
}

func (c *Context) WithQueue(name string) *Context {
	c.queueName = name
	return c
}

func (c *Context) WithNumMessages(n int) *Context {
	c.numMessages = n
	return c
}

func (c *Context) WithStartFromOldest() *Context {
	c.cfg.StartFrom = config.StartFromOldest
	return c
}

func (c *Context) WithCleanupPolicy(policy string) *Context {
	c.cfg.CleanupPolicy = policy
	return c
}

func (c *Context) When() *Actions {
	return &Actions{ctx: c}
}

func (c *Context) Cleanup() {
	for name, r := range c.readers {
		if err := r.Close(); err != nil {
			c.t.Logf("Cleanup warning: close consumer %q: %v", name, err)
		}
	}
	c.readers = make(map[string]*consumer.Consumer)

	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.t.Logf("Cleanup warning: close writer: %v", err)
		}
		c.writer = nil
	}
}

func (c *Context) reader(name string) *consumer.Consumer {
	r, ok := c.readers[name]
	if !ok {
		c.t.Fatalf("consumer %q was never opened", name)
	}
	return r
}

func (a *Actions) Then() *Consequences {
	return &Consequences{ctx: a.ctx}
}

func (c *Consequences) Expect(expectation Expectation) *Consequences {
	if err := expectation(c.ctx); err != nil {
		c.ctx.t.Errorf("Expectation failed: %v", err)
	}
	return c
}

func (c *Consequences) And(expectation Expectation) *Consequences {
	return c.Expect(expectation)
}

func bodyFor(i int) string {
	return fmt.Sprintf("message-%d", i)
}
