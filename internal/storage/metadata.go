package storage

// FileMetadata describes a stored upload. It maps onto the fileName and url
// of an attachment component.
type FileMetadata struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	MIME   string `json:"mime"`
	SHA256 string `json:"sha256,omitempty"`
}

// PresignedUpload is a direct-to-bucket upload grant.
type PresignedUpload struct {
	Key       string `json:"key"`
	UploadURL string `json:"uploadUrl"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}
