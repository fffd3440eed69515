package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Browser configuration (rendered fetch mode)
	BrowserHeadless   bool
	BrowserProfileDir string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
