package storage

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// Upload categories, one per attachment component kind.
const (
	CategoryImage = "image"
	CategoryVideo = "video"
	CategoryAudio = "audio"
	CategoryFile  = "file"
)

// FilePolicy constrains one upload category.
type FilePolicy struct {
	MaxFileMB  float64  `json:"maxFileMB,omitempty"`
	MimeTypes  []string `json:"mime,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

// Policies are the upload rules for each category.
type Policies map[string]FilePolicy

// DefaultPolicies mirror the messaging platform attachment limits.
func DefaultPolicies(maxFileMB float64) Policies {
	return Policies{
		CategoryImage: {MaxFileMB: maxFileMB, MimeTypes: []string{"image/*"}, Extensions: []string{"png", "jpg", "jpeg", "gif", "webp"}},
		CategoryVideo: {MaxFileMB: maxFileMB, MimeTypes: []string{"video/*"}, Extensions: []string{"mp4", "mov", "webm"}},
		CategoryAudio: {MaxFileMB: maxFileMB, MimeTypes: []string{"audio/*"}, Extensions: []string{"mp3", "ogg", "wav", "m4a"}},
		CategoryFile:  {MaxFileMB: maxFileMB},
	}
}

// Validate checks a file against the policy of its category.
func (p Policies) Validate(category, fileName, contentType string, size int64) error {
	fp, ok := p[category]
	if !ok {
		return errors.NotValidf("upload category %q", category)
	}
	return fp.ValidateFile(fileName, contentType, size)
}

func (fp FilePolicy) ValidateFile(fileName, contentType string, size int64) error {
	if fp.MaxFileMB > 0 {
		maxBytes := int64(fp.MaxFileMB * 1024 * 1024)
		if size > maxBytes {
			return errors.NewNotValid(nil, "file exceeds the upload size limit")
		}
	}
	if len(fp.MimeTypes) > 0 && !fp.matchesMimeType(contentType) {
		return errors.NotValidf("content type %q", contentType)
	}
	if len(fp.Extensions) > 0 && !fp.matchesExtension(fileName) {
		return errors.NotValidf("file extension of %q", fileName)
	}
	return nil
}

func (fp FilePolicy) matchesMimeType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	for _, allowed := range fp.MimeTypes {
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(mediaType, prefix+"/") {
				return true
			}
		} else if mediaType == allowed {
			return true
		}
	}
	return false
}

func (fp FilePolicy) matchesExtension(fileName string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range fp.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
