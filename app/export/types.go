package export

import "time"

// News item categories as they appear in the export.
const (
	CategoryNieuws     = "nieuws"
	CategoryMededeling = "mededeling"
)

// Priority offsets. News items without a responsible mandatee sort after
// every mandatee-bearing item; announcements sort after everything.
const (
	mandateelessOffset = 1000
	announcementOffset = 100000
)

// Access level marking a document version as publicly available.
const publicAccessLevel = "http://kanselarij.vo.data.gift/id/concept/toegangs-niveaus/6ca49d86-d40f-46c9-bde3-a322aa7e5c8e"

// Not every category of record has been exported for the full history of
// the source store. Sessions before these dates export nothing (or skip
// the gated stage).
var (
	DefaultExportSince        = time.Date(2006, time.July, 19, 0, 0, 0, 0, time.UTC)
	DefaultAnnouncementsSince = time.Date(2016, time.September, 8, 0, 0, 0, 0, time.UTC)
	DefaultDocumentsSince     = time.Date(2016, time.September, 8, 0, 0, 0, 0, time.UTC)
)

// Config is the immutable pipeline configuration, built once in main and
// passed in at construction.
type Config struct {
	ExportDir            string
	BatchSize            int
	SourceGraph          string
	PublicGraph          string
	ExportSince          time.Time
	AnnouncementsSince   time.Time
	DocumentsSince       time.Time
	CleanupFailedExports bool
}
