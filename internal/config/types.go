package config

// Config is the root configuration for the org-async coordinator.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Worker  WorkerConfig  `yaml:"worker"`
	Journal JournalConfig `yaml:"journal"`
	API     APIConfig     `yaml:"api"`
}

// ServiceConfig holds coordinator-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// WorkerConfig controls how worker processes are spawned.
type WorkerConfig struct {
	// HostExec is the executable that evaluates generated artifacts in
	// batch mode.
	HostExec string `yaml:"host_exec"`

	// InitFile, when non-empty, must be an absolute path. The worker then
	// loads only this file instead of the normal initialization sequence.
	InitFile string `yaml:"init_file"`

	// Debug retains artifacts and raw worker output after completion.
	Debug bool `yaml:"debug"`

	// ArtifactDir is where generated artifacts are written.
	ArtifactDir string `yaml:"artifact_dir"`
}

// JournalConfig holds completion journal settings.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// APIConfig holds inspection API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "org-async",
			LogLevel: "info",
		},
		Worker: WorkerConfig{
			HostExec:    "emacs",
			ArtifactDir: defaultArtifactDir(),
		},
		Journal: JournalConfig{
			Path: "./org-async.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8321",
		},
	}
}
