package cfg

type Cfg struct {
	// SPARQL endpoints
	SourceEndpoint  string
	WorkingEndpoint string

	// Graphs
	SourceGraph string
	PublicGraph string

	// Export configuration
	ExportDir            string
	ExportBatchSize      int
	CleanupFailedExports bool

	// Application configuration
	Port            string
	JobPollInterval int
	UserAgent       string
	Timezone        string
	Debug           bool

	// Application metadata
	Version string
}
