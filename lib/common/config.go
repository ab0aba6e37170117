package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/fKV/lib/codec"
)

// --------------------------------------------------------------------------
// Engine configuration struct
// --------------------------------------------------------------------------

// EngineConfig holds everything needed to resolve an engine and open a database.
type EngineConfig struct {
	// Engine is the preferred engine variant (bolt, lmdb, maple).
	// Empty means the first available one.
	Engine string

	// storage parameters
	DataDir     string
	FileMode    os.FileMode
	LMDBMapSize int64
	NoSync      bool

	// value serialization (json, yaml, gob)
	Codec string

	// database to open. Version 0 opens the current version.
	DBName    string
	DBVersion uint64

	// Logging configuration
	LogLevel string
}

// DefaultEngineConfig returns the configuration used when nothing is set
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FileMode:  0700,
		Codec:     "json",
		DBName:    "default",
		DBVersion: 1,
		LogLevel:  "info",
	}
}

// Validate checks the values that do not depend on the engine variant
func (c *EngineConfig) Validate() error {
	if c.DBName == "" {
		return fmt.Errorf("database name must not be empty")
	}
	if _, err := codec.New(c.Codec); err != nil {
		return err
	}
	if c.LMDBMapSize < 0 {
		return fmt.Errorf("lmdb map size must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *EngineConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	engine := c.Engine
	if engine == "" {
		engine = "auto"
	}

	addSection("Engine")
	addField("Variant", engine)
	addField("Codec", c.Codec)

	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("File Mode", fmt.Sprintf("%#o", c.FileMode))
	addField("LMDB Map Size", fmt.Sprintf("%d bytes", c.LMDBMapSize))
	addField("No Sync", fmt.Sprintf("%t", c.NoSync))

	addSection("Database")
	addField("Name", c.DBName)
	if c.DBVersion == 0 {
		addField("Version", "current")
	} else {
		addField("Version", fmt.Sprintf("%d", c.DBVersion))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
