// Package config resolves the development server configuration from
// command-line flags and an optional wasmserve.yaml file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BuildConfig selects which build output tree is served.
type BuildConfig string

const (
	Debug   BuildConfig = "Debug"
	Release BuildConfig = "Release"
)

func (b BuildConfig) String() string { return string(b) }

const (
	DefaultPort      = 3000
	DefaultFramework = "net8.0"
	ConfigFileName   = "wasmserve.yaml"
	IndexFileName    = "index.html"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	Build       BuildConfig
	ProjectDir  string // DocumentRoot, holds the entry index.html
	ContentRoot string // bin/<Build>/<Framework>/wwwroot under ProjectDir
	Framework   string
	ConfigFile  string

	Host string
	Port int

	Watch           bool
	Debounce        time.Duration
	Compress        bool
	Quiet           bool
	ShutdownTimeout time.Duration

	Headers   map[string]string
	MimeTypes map[string]string
}

// ContentRootFor returns the conventional build output directory.
func ContentRootFor(projectDir string, build BuildConfig, framework string) string {
	return filepath.Join(projectDir, "bin", build.String(), framework, "wwwroot")
}

// Addr is the listen address; an empty host binds all interfaces.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL is the address announced on the console.
func (c *Config) URL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// IndexFile is the root document served for "/" and "/index.html".
func (c *Config) IndexFile() string {
	return filepath.Join(c.ProjectDir, IndexFileName)
}

// Load parses args (without the program name) and applies wasmserve.yaml.
// Flags explicitly set on the command line win over the file.
func Load(args []string) (*Config, error) {
	return load(args, os.Stderr)
}

func load(args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("Development server", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "Development server - Serves the WASM program")
		_, _ = fmt.Fprintln(fs.Output(), "\nUsage: wasmserve [flags]")
		fs.PrintDefaults()
	}

	var release bool
	fs.BoolVar(&release, "r", false, "Serve release config (shorthand)")
	fs.BoolVar(&release, "release", false, "Serve release config")
	dir := fs.String("dir", "", "Project `directory` holding index.html and bin/ (default: executable or working directory)")
	host := fs.String("host", "", "The host/IP to bind to (default: all interfaces)")
	port := fs.Int("port", DefaultPort, "The port to listen on")
	framework := fs.String("framework", DefaultFramework, "Target framework folder under bin/<config>/")
	configFile := fs.String("config", "", "YAML config `file` (default: <dir>/"+ConfigFileName+")")
	watch := fs.Bool("watch", false, "Reload the browser when the build output changes")
	compress := fs.Bool("gzip", false, "Gzip-compress file responses")
	quiet := fs.Bool("quiet", false, "Disable the request log")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	projectDir := *dir
	if projectDir == "" {
		var err error
		if projectDir, err = ProjectDir(); err != nil {
			return nil, err
		}
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("invalid project directory: %w", err)
	}

	path := *configFile
	explicit := path != ""
	if !explicit {
		path = filepath.Join(projectDir, ConfigFileName)
	}
	fc, err := LoadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			fc = DefaultFileConfig()
			path = ""
		} else {
			return nil, err
		}
	}

	if set["host"] {
		fc.Host = *host
	}
	if set["port"] {
		fc.Port = *port
	}
	if set["framework"] {
		fc.Framework = *framework
	}
	if set["r"] || set["release"] {
		fc.Release = release
	}
	if set["watch"] {
		fc.Watch = *watch
	}
	if set["gzip"] {
		fc.Compress = *compress
	}
	if set["quiet"] {
		fc.Quiet = *quiet
	}
	fc.validate()

	build := Debug
	if fc.Release {
		build = Release
	}

	return &Config{
		Build:           build,
		ProjectDir:      projectDir,
		ContentRoot:     ContentRootFor(projectDir, build, fc.Framework),
		Framework:       fc.Framework,
		ConfigFile:      path,
		Host:            fc.Host,
		Port:            fc.Port,
		Watch:           fc.Watch,
		Debounce:        fc.Debounce,
		Compress:        fc.Compress,
		Quiet:           fc.Quiet,
		ShutdownTimeout: fc.ShutdownTimeout,
		Headers:         fc.Headers,
		MimeTypes:       fc.MimeTypes,
	}, nil
}
