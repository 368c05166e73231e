package models

// ImageAsset is one uploaded image's content plus metadata. The identifier is
// stable for the duration of one upload/chat-send cycle; the bytes are never
// mutated, downstream stages produce new derived assets instead.
type ImageAsset struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	FileName string `json:"file_name,omitempty"`
	Data     []byte `json:"-"`
}

// Size in bytes of the raw content.
func (a ImageAsset) Size() int { return len(a.Data) }
