package keyring

import (
	"fmt"
	"sync"
)

// compositeProvider tries each backend in order and sticks with the first
// one found available, caching that choice so every later call doesn't
// re-probe every backend.
type compositeProvider struct {
	providers []Provider

	mu     sync.Mutex
	active Provider
}

// NewCompositeProvider returns a Provider that tries the platform's native
// backend first. There is currently exactly one backend per platform
// (zalando/go-keyring), but the slice shape leaves room for an additional
// fallback without changing callers.
func NewCompositeProvider() Provider {
	return &compositeProvider{
		providers: []Provider{NewZalandoKeyringProvider()},
	}
}

func (c *compositeProvider) getActiveProvider() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.IsAvailable() {
		return c.active
	}

	for _, p := range c.providers {
		if p.IsAvailable() {
			c.active = p
			return p
		}
	}
	c.active = nil
	return nil
}

func (c *compositeProvider) Name() string {
	if p := c.getActiveProvider(); p != nil {
		return p.Name()
	}
	return "None Available"
}

func (c *compositeProvider) IsAvailable() bool {
	return c.getActiveProvider() != nil
}

func (c *compositeProvider) Set(service, key, value string) error {
	p := c.getActiveProvider()
	if p == nil {
		return fmt.Errorf("no keyring provider available")
	}
	return p.Set(service, key, value)
}

func (c *compositeProvider) Get(service, key string) (string, error) {
	p := c.getActiveProvider()
	if p == nil {
		return "", fmt.Errorf("no keyring provider available")
	}
	return p.Get(service, key)
}

func (c *compositeProvider) Delete(service, key string) error {
	p := c.getActiveProvider()
	if p == nil {
		return fmt.Errorf("no keyring provider available")
	}
	return p.Delete(service, key)
}

func (c *compositeProvider) DeleteAll(service string) error {
	p := c.getActiveProvider()
	if p == nil {
		return fmt.Errorf("no keyring provider available")
	}
	return p.DeleteAll(service)
}
