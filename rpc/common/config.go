package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the hed server
type ServerConfig struct {
	// Socket settings
	Endpoint       string
	SocketMode     os.FileMode
	MaxConnections int
	MaxMessageKB   int

	// Repository settings
	DBPath   string
	Tables   []string
	ReadOnly bool
	Recovery bool
	FileMode os.FileMode

	// Authorization: group names (or numeric ids) allowed to read / write
	ReadGroup  string
	WriteGroup string

	// Timeouts
	TimeoutSecond       int64
	HaltTimeoutSecond   int64
	StatsIntervalSecond int64

	// Observability
	MetricsEndpoint string
	LogLevel        string
}

// ChunkSize is the size of one message buffer chunk (one memory page)
func (c *ServerConfig) ChunkSize() int {
	return os.Getpagesize()
}

// Validate checks the configuration for values the server cannot start with
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path must not be empty")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	if c.ReadOnly && c.Recovery {
		return fmt.Errorf("recovery requires a read-write repository")
	}
	if c.MaxMessageKB <= 0 {
		return fmt.Errorf("max message size must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Socket Mode", fmt.Sprintf("%#o", uint32(c.SocketMode)))
	addField("Max Connections", strconv.Itoa(c.MaxConnections))
	addField("Max Message Size", fmt.Sprintf("%d KB", c.MaxMessageKB))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Halt Timeout", fmt.Sprintf("%d sec", c.HaltTimeoutSecond))

	// Repository
	addSection("Repository")
	addField("Path", c.DBPath)
	addField("Tables", strings.Join(c.Tables, ", "))
	addField("Read Only", strconv.FormatBool(c.ReadOnly))
	addField("Recovery", strconv.FormatBool(c.Recovery))
	addField("File Mode", fmt.Sprintf("%#o", uint32(c.FileMode)))

	// Authorization
	addSection("Authorization")
	addField("Read Group", c.ReadGroup)
	addField("Write Group", c.WriteGroup)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}
	if c.StatsIntervalSecond > 0 {
		addField("Stats Interval", fmt.Sprintf("%d sec", c.StatsIntervalSecond))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
	RetryCount    int
	MaxMessageKB  int
}

// ChunkSize is the size of one message buffer chunk (one memory page)
func (c *ClientConfig) ChunkSize() int {
	return os.Getpagesize()
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Max Message Size", fmt.Sprintf("%d KB", c.MaxMessageKB))

	return sb.String()
}
