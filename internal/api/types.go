package api

import "time"

// FileDescriptor describes a successfully uploaded file as returned by the
// backend. It is immutable once produced and is copied by value into the
// outgoing message that references it.
type FileDescriptor struct {
	FileID        string `json:"fileId"`
	FileName      string `json:"fileName"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	StorageURL    string `json:"storageUrl"`
	ProviderName  string `json:"providerName"`
	ExtractedText string `json:"extractedText,omitempty"`
}

// SendRequest is the body of the streaming send call.
type SendRequest struct {
	Message      string           `json:"message"`
	FileMetadata []FileDescriptor `json:"fileMetadata,omitempty"`
}

// HistoryMessage is the wire shape of a persisted conversation message.
type HistoryMessage struct {
	ID          string           `json:"id"`
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	CreatedAt   time.Time        `json:"createdAt"`
	Attachments []FileDescriptor `json:"attachments,omitempty"`
}

// HistoryPage is one page of backward-paginated history.
type HistoryPage struct {
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Items    []HistoryMessage `json:"items"`
	HasMore  bool             `json:"hasMore"`
}
