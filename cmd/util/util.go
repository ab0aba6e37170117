package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupEngineFlags adds the engine and database flags to a command
func SetupEngineFlags(cmd *cobra.Command) {
	defaults := common.DefaultEngineConfig()

	key := "engine"
	cmd.PersistentFlags().String(key, "", WrapString("Engine variant to use (bolt, lmdb, maple). Empty picks the first available one"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, "data", WrapString("Directory holding the database files (bolt, lmdb)"))

	key = "codec"
	cmd.PersistentFlags().String(key, defaults.Codec, WrapString("Codec used to serialize values (json, yaml, gob)"))

	key = "file-mode"
	cmd.PersistentFlags().String(key, "0700", WrapString("File mode (octal) for new database files and directories"))

	key = "lmdb-map-size"
	cmd.PersistentFlags().Int64(key, 0, WrapString("Initial LMDB map size in bytes (0 = default, grows on demand)"))

	key = "no-sync"
	cmd.PersistentFlags().Bool(key, false, WrapString("Skip fsync on commit. Faster, but the last transactions may be lost on a crash"))

	key = "db-name"
	cmd.PersistentFlags().String(key, defaults.DBName, WrapString("Name of the database to open"))

	key = "db-version"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Version to open the database at (0 = the current version)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("Timeout in seconds for a single operation"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("fkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetEngineConfig reads the engine configuration from viper
func GetEngineConfig() (common.EngineConfig, error) {
	mode, err := strconv.ParseUint(viper.GetString("file-mode"), 8, 32)
	if err != nil {
		return common.EngineConfig{}, fmt.Errorf("file-mode must be an octal number: %w", err)
	}

	conf := common.EngineConfig{
		Engine:      viper.GetString("engine"),
		DataDir:     viper.GetString("data-dir"),
		FileMode:    os.FileMode(mode),
		LMDBMapSize: viper.GetInt64("lmdb-map-size"),
		NoSync:      viper.GetBool("no-sync"),
		Codec:       viper.GetString("codec"),
		DBName:      viper.GetString("db-name"),
		DBVersion:   viper.GetUint64("db-version"),
		LogLevel:    viper.GetString("log-level"),
	}
	return conf, conf.Validate()
}

// GetTimeoutSecond returns the configured operation timeout
func GetTimeoutSecond() int {
	return viper.GetInt("timeout")
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Argument parsing
// --------------------------------------------------------------------------

// ParseKey turns a command line argument into a key. Numbers become float64,
// everything else stays a string. A leading '=' forces a string ("=42").
func ParseKey(arg string) any {
	if strings.HasPrefix(arg, "=") {
		return arg[1:]
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	return arg
}

// ParseValue parses arg as JSON and falls back to the raw string
func ParseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// FormatValue renders a value as JSON for output
func FormatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
