package config

import (
	"os"
	"sync"
)

var (
	inContainerOnce   sync.Once
	inContainerResult bool
)

// dockerEnvPath exists in every Docker container.
var dockerEnvPath = "/.dockerenv"

// InContainer reports whether the process runs inside a Docker container.
// The result is cached after the first call.
func InContainer() bool {
	inContainerOnce.Do(func() {
		_, err := os.Stat(dockerEnvPath)
		inContainerResult = err == nil
	})
	return inContainerResult
}

// resolveHost maps loopback hosts to the Docker host gateway when inContainer is set,
// so a containerized run reaches a database published on the host machine.
func resolveHost(host string, inContainer bool) string {
	if !inContainer {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

// ResolvedHost returns the host to dial for this environment.
func (c *DatabaseConfig) ResolvedHost() string {
	return resolveHost(c.Host, InContainer())
}

// BrowserSandbox reports whether Chrome may use its sandbox. Containers
// usually lack the kernel features it needs, so it is always off there.
func (c *BrowserConfig) BrowserSandbox() bool {
	return c.Sandbox && !InContainer()
}
