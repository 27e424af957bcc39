package orchestrator

type TranscribeArgs struct {
	MediaID    string
	Source     string // audio path handed to the recognizer
	DurationMs int64  // <= 0 means unknown
	Language   string // "" or "auto" to detect
}

type TranslateArgs struct {
	MediaID    string
	TargetLang string // falls back to translate.target_lang
}

type ExportArgs struct {
	MediaID string
	Dir     string // parent of the export directory; falls back to paths.outputs
	Name    string // display name used for the directory; defaults to MediaID
}

type ExportResult struct {
	JobID string
	Dir   string
	Files []string
}
