package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/fieldtrack/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the FieldTrack configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with -dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults())

		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unknownKeys(v.AllKeys()), nil
}

func unknownKeys(keys []string) []string {
	valid := make(map[string]bool)
	for _, key := range config.KnownKeys() {
		valid[key] = true
	}

	unknown := []string{}
	for _, key := range keys {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// dumpConfig prints every section, highlighting values that differ from
// the defaults.
func dumpConfig(cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	dumpSection("", reflect.ValueOf(*cfg), reflect.ValueOf(*defaultCfg), 0, cyan, yellow, green)
}

func dumpSection(prefix string, value, defaultValue reflect.Value, depth int, header, modified, unchanged *color.Color) {
	indent := strings.Repeat("  ", depth)

	for i := 0; i < value.NumField(); i++ {
		field := value.Type().Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}

		if field.Type.Kind() == reflect.Struct {
			_, _ = header.Printf("\n%s[%s]\n", indent, name)
			dumpSection(name, value.Field(i), defaultValue.Field(i), depth+1, header, modified, unchanged)
			continue
		}

		current := value.Field(i).Interface()
		def := defaultValue.Field(i).Interface()
		if key == "password" {
			current = redactPassword(current.(string))
			def = redactPassword(def.(string))
		}
		dumpField(indent+"  "+key, current, def, modified, unchanged)
	}
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
