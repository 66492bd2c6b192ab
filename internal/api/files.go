package api

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"adminhub/internal/storage"
)

const maxMultipartMemory = 32 << 20

// categoryOf picks the upload category of a content type.
func categoryOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return storage.CategoryImage
	case strings.HasPrefix(contentType, "video/"):
		return storage.CategoryVideo
	case strings.HasPrefix(contentType, "audio/"):
		return storage.CategoryAudio
	}
	return storage.CategoryFile
}

func contentTypeOf(fileName, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(path.Ext(fileName)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// upload stores a multipart file and returns the metadata an attachment
// component needs.
func (d Dependencies) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		d.fail(w, r, errors.NewNotValid(err, "invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		d.fail(w, r, errors.NewNotValid(err, "missing file"))
		return
	}
	defer file.Close()

	contentType := contentTypeOf(header.Filename, header.Header.Get("Content-Type"))
	category := r.FormValue("category")
	if category == "" {
		category = categoryOf(contentType)
	}
	if err := d.Policies.Validate(category, header.Filename, contentType, header.Size); err != nil {
		d.fail(w, r, err)
		return
	}

	sum, err := storage.CalculateSHA256(file)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		d.fail(w, r, err)
		return
	}

	key := storage.NewKey(header.Filename)
	if err := d.Storage.Put(r.Context(), key, contentType, file); err != nil {
		d.fail(w, r, err)
		return
	}

	d.Log.Info("file uploaded",
		zap.String("key", key),
		zap.String("category", category),
		zap.Int64("size", header.Size),
	)
	writeJSON(w, http.StatusCreated, storage.FileMetadata{
		Key:    key,
		Name:   header.Filename,
		URL:    d.Storage.PublicURL(key),
		Size:   header.Size,
		MIME:   contentType,
		SHA256: sum,
	})
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Category    string `json:"category,omitempty"`
}

// presignUpload grants a direct upload to the bucket.
func (d Dependencies) presignUpload(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := decodeJSON(r, &req); err != nil {
		d.fail(w, r, err)
		return
	}
	if req.FileName == "" {
		d.fail(w, r, errors.NotValidf("empty fileName"))
		return
	}

	contentType := contentTypeOf(req.FileName, req.ContentType)
	category := req.Category
	if category == "" {
		category = categoryOf(contentType)
	}
	if err := d.Policies.Validate(category, req.FileName, contentType, req.Size); err != nil {
		d.fail(w, r, err)
		return
	}

	key := storage.NewKey(req.FileName)
	uploadURL, err := d.Storage.PresignPut(r.Context(), key, contentType, d.PresignTTL)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, storage.PresignedUpload{
		Key:       key,
		UploadURL: uploadURL,
		URL:       d.Storage.PublicURL(key),
		ExpiresIn: int(d.PresignTTL.Seconds()),
	})
}

// serveFile streams a locally stored upload.
func (d Dependencies) serveFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	body, err := d.Storage.Get(r.Context(), key)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentTypeOf(key, ""))
	if _, err := io.Copy(w, body); err != nil {
		d.Log.Warn("failed to stream file", zap.String("key", key), zap.Error(err))
	}
}

// putFile accepts the body of a presigned local upload.
func (d Dependencies) putFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !strings.HasPrefix(key, storage.KeyPrefix) {
		d.fail(w, r, errors.NotValidf("object key %q", key))
		return
	}
	if limit := d.Policies[storage.CategoryFile].MaxFileMB; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(limit*1024*1024))
	}

	if err := d.Storage.Put(r.Context(), key, contentTypeOf(key, r.Header.Get("Content-Type")), r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = errors.NewNotValid(err, "file exceeds the upload size limit")
		}
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
