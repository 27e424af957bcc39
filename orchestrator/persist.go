package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/transcript-pipeline/export"
	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/progress"
	"github.com/maastricht-university/transcript-pipeline/store"
)

func mkExportDir(root, name string) (string, error) {
	ts := time.Now().Format("20060102-150405")
	dir := filepath.Join(root, export.SafeName(name)+"_"+ts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Export writes the stored transcript and every non-empty subtitle track of a
// media item into a fresh timestamped directory.
func (p *Pipeline) Export(ctx context.Context, args ExportArgs) (*ExportResult, error) {
	mediaID := strings.TrimSpace(args.MediaID)
	if err := store.ValidateMediaID(mediaID); err != nil {
		return nil, err
	}
	rep := p.reporter(mediaID, models.JobExport)
	log := p.log.WithFields(logrus.Fields{"job_id": rep.Job().JobID, "media_id": mediaID})
	rep.Stage(0, "exporting")

	res, err := p.export(ctx, mediaID, args, rep)
	if err := finish(rep, err, "export finished"); err != nil {
		log.WithError(err).Error("export failed")
		return nil, err
	}
	res.JobID = rep.Job().JobID
	log.WithFields(logrus.Fields{"dir": res.Dir, "files": len(res.Files)}).Info("export written")
	return res, nil
}

func (p *Pipeline) export(ctx context.Context, mediaID string, args ExportArgs, rep *progress.Reporter) (*ExportResult, error) {
	tr, err := p.deps.Store.LoadTranscript(ctx, mediaID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	doc, err := p.deps.Store.LoadSubtitles(ctx, mediaID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load subtitles: %w", err)
	}
	if tr == nil && doc == nil {
		return nil, fmt.Errorf("media %s has nothing to export", mediaID)
	}

	root := strings.TrimSpace(args.Dir)
	if root == "" {
		root = p.cfg.Paths.Outputs
	}
	name := strings.TrimSpace(args.Name)
	if name == "" {
		name = mediaID
	}
	dir, err := mkExportDir(root, name)
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	files := export.Bundle(tr, doc)
	total := len(files)
	if tr != nil {
		total++
	}
	res := &ExportResult{Dir: dir}
	step := func(path string) {
		res.Files = append(res.Files, path)
		rep.Update(float64(len(res.Files))/float64(total), "wrote "+filepath.Base(path))
	}

	if tr != nil {
		path := filepath.Join(dir, "transcription.json")
		if err := writeJSON(path, tr); err != nil {
			return nil, fmt.Errorf("write transcription.json: %w", err)
		}
		step(path)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
		step(path)
	}
	return res, nil
}
