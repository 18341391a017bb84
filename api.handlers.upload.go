package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// UploadsRoutePrefix is the path under which uploaded files are served.
const UploadsRoutePrefix = "/uploads/"

// imageExtensions maps the accepted sniffed content types to the
// extension of the stored file.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func isImageExtension(ext string) bool {
	for _, e := range imageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// UploadedFile is sent back once an image is stored.
type UploadedFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// UploadImage godoc
// @Summary      Upload a book cover image
// @Tags         admin
// @Accept       mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "image file"
// @Success      200   {object}  APIResponse
// @Failure      400   {object}  APIError
// @Router       /api/upload/imagen [post]
func (api *APIHandler) UploadImage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	maxSize := api.config.Uploads.MaxSize
	// leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+megabyte)
	if err := r.ParseMultipartForm(megabyte); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.Fail(w, r, NewInvalidArgumentError(fmt.Sprintf("image can not exceed %d bytes", maxSize)), "upload too large")
			return
		}
		api.Fail(w, r, NewInvalidArgumentError("invalid multipart request"), "failed to parse upload", zap.Error(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Fail(w, r, missingFieldError("file"), "no file in upload", zap.Error(err))
		return
	}
	defer file.Close()

	if header.Size == 0 {
		api.Fail(w, r, NewInvalidArgumentError("file is empty"), "empty upload")
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		api.Fail(w, r, NewInvalidArgumentError("file must be an image"), "upload rejected", zap.String("content.type", header.Header.Get("Content-Type")))
		return
	}
	if header.Size > maxSize {
		api.Fail(w, r, NewInvalidArgumentError(fmt.Sprintf("image can not exceed %d bytes", maxSize)), "upload too large", zap.Int64("size", header.Size))
		return
	}

	// the declared type is only a hint, the stored type comes from the content.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		api.Fail(w, r, NewInvalidArgumentError("invalid multipart request"), "failed to read upload", zap.Error(err))
		return
	}
	head = head[:n]
	sniffed := http.DetectContentType(head)
	ext, found := imageExtensions[sniffed]
	if !found {
		api.Fail(w, r, NewInvalidArgumentError("file must be an image"), "upload rejected",
			zap.String("content.type", header.Header.Get("Content-Type")),
			zap.String("content.sniffed", sniffed),
		)
		return
	}

	filename := api.idsHandler.Generate("") + ext
	if err = saveUpload(filepath.Join(api.config.Uploads.Folder, filename), io.MultiReader(bytes.NewReader(head), file)); err != nil {
		api.Fail(w, r, err, "failed to save upload", zap.String("filename", filename))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("image uploaded", zap.String("filename", filename), zap.Int64("size", header.Size))
	api.Respond(w, r, http.StatusOK, "Image uploaded successfully.", nil, UploadedFile{
		URL:      UploadsRoutePrefix + filename,
		Filename: filename,
	})
}

// ServeUpload sends back a stored image. Directories and files
// without an image extension are never served.
func (api *APIHandler) ServeUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := path.Base(ps.ByName("filepath"))
	if name == "/" || name == "." {
		api.NotFound().ServeHTTP(w, r)
		return
	}
	if !isImageExtension(filepath.Ext(name)) {
		api.NotFound().ServeHTTP(w, r)
		return
	}
	fullpath := filepath.Join(api.config.Uploads.Folder, name)
	info, err := os.Stat(fullpath)
	if err != nil || info.IsDir() {
		api.NotFound().ServeHTTP(w, r)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, fullpath)
}

func saveUpload(dest string, src io.Reader) error {
	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("upload: create file: %w", err)
	}
	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return fmt.Errorf("upload: write file: %w", err)
	}
	return dst.Close()
}
