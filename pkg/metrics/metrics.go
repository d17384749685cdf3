package metrics

/*
Labels and so on for metrics used in the gallery core.
*/

const (
	LabelMethod  = "method"
	LabelSuccess = "success"

	// Labels for download metrics
	LabelPath    = "path"
	PathGallery  = "gallery"
	PathCalendar = "calendar"
)
