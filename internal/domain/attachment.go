package domain

import (
	"encoding/json"
	"fmt"
)

// FileAttachment references a local file to upload alongside a message.
type FileAttachment struct {
	FilePath    string `json:"filePath"`
	ContentType string `json:"contentType,omitempty"`
	FileName    string `json:"fileName,omitempty"`
}

// UnmarshalJSON rejects attachment objects that carry no filePath.
func (f *FileAttachment) UnmarshalJSON(data []byte) error {
	type plain FileAttachment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.FilePath == "" {
		return fmt.Errorf("%w: attachment missing filePath", ErrInvalidParameters)
	}
	*f = FileAttachment(p)
	return nil
}
