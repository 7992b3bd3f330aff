package rest

import (
	"errors"
	"net/http"

	"github.com/MaikZ91/liebefeld/util"
	"github.com/MaikZ91/liebefeld/util/storage"
	"github.com/MaikZ91/liebefeld/util/tracing"
	"github.com/MaikZ91/liebefeld/util/values"
	"github.com/go-chi/chi/v5"
)

const maxUploadSize = 10 << 20

func (api *API) UploadRoutes() chi.Router {
	mux := chi.NewRouter()
	mux.Method(http.MethodPost, "/", Handler(api.UploadImageHandler))
	return mux
}

type UploadResponse struct {
	URL string `json:"url"`
}

// UploadImageHandler stores the multipart "file" in the folder named by the
// folder query parameter and returns its public URL.
func (api *API) UploadImageHandler(w http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = storage.FolderEvents
	}
	if !storage.ValidFolder(folder) {
		return respondWithError(errors.New("unknown folder "+folder), "invalid upload folder", values.BadRequestBody, &tc)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return respondWithError(err, "unable to read upload", values.BadRequestBody, &tc)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return respondWithError(err, "missing file", values.BadRequestBody, &tc)
	}
	defer file.Close()

	if mtype, err := storage.DetectImage(file); err != nil {
		return respondWithError(err, "unsupported file type "+mtype, values.BadRequestBody, &tc)
	}

	url, err := api.Deps.Cloudinary.UploadImage(r.Context(), file, folder)
	if err != nil {
		status := values.Failed
		if errors.Is(err, storage.ErrNotConfigured) {
			status = values.NotAllowed
		}
		return respondWithError(err, "unable to store image", status, &tc)
	}

	return &ServerResponse{
		Message:    "Image uploaded successfully",
		Status:     values.Created,
		StatusCode: util.StatusCode(values.Created),
		Data:       UploadResponse{URL: url},
	}
}
