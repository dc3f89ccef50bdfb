package teams

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"agentlink/internal/domain"
)

const (
	fileAttachmentType = "#microsoft.graph.fileAttachment"
	defaultContentType = "application/octet-stream"

	maxConcurrentReads = 8
)

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	ContentBytes string `json:"contentBytes"`
	ContentType  string `json:"contentType"`
	Name         string `json:"name"`
}

// prepareAttachments reads and encodes every attachment concurrently.
// Files that cannot be read are logged and dropped; order is preserved.
func prepareAttachments(ctx context.Context, atts []domain.FileAttachment, logger *slog.Logger) []graphAttachment {
	slots := make([]*graphAttachment, len(atts))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, att := range atts {
		g.Go(func() error {
			if att.FilePath == "" {
				logger.Error("attachment missing filePath")
				return nil
			}
			p, err := filepath.Abs(att.FilePath)
			if err != nil {
				p = att.FilePath
			}
			data, err := os.ReadFile(p)
			if err != nil {
				logger.Error("cannot read attachment", "path", att.FilePath, "err", err)
				return nil
			}

			ct := att.ContentType
			if ct == "" {
				ct = defaultContentType
			}
			name := att.FileName
			if name == "" {
				name = filepath.Base(att.FilePath)
			}
			slots[i] = &graphAttachment{
				ODataType:    fileAttachmentType,
				ContentBytes: base64.StdEncoding.EncodeToString(data),
				ContentType:  ct,
				Name:         name,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]graphAttachment, 0, len(atts))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
