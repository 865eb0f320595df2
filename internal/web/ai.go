package web

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/conorfennell/leafcare/internal/domain"
)

const (
	defaultCatalogLimit = 20
	maxCatalogLimit     = 100
)

type identifyRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type chatRequest struct {
	PlantContext string               `json:"plantContext" validate:"max=4000"`
	History      []domain.ChatMessage `json:"history" validate:"max=50,dive"`
	Message      string               `json:"message" validate:"required,max=4000"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type imagesResponse struct {
	Images []string `json:"images"`
}

// handleIdentify accepts either a multipart upload with an "image" field
// or a JSON body naming the plant.
func (s *Server) handleIdentify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.identifier == nil {
			writeError(w, http.StatusServiceUnavailable, "identification is not configured")
			return
		}

		var (
			id  domain.Identification
			err error
		)
		if isMultipart(r) {
			data, mimeType, ok := readImage(w, r)
			if !ok {
				return
			}
			id, err = s.identifier.IdentifyImage(r.Context(), data, mimeType)
		} else {
			var req identifyRequest
			if !decode(w, r, &req) {
				return
			}
			req.Name = strings.TrimSpace(req.Name)
			if !s.check(w, req) {
				return
			}
			id, err = s.identifier.IdentifyName(r.Context(), req.Name)
		}
		s.metrics.ExternalCall("ai", err)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.enrich(r.Context(), &id)
		writeJSON(w, http.StatusOK, id)
	}
}

func (s *Server) handleDiagnose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.identifier == nil {
			writeError(w, http.StatusServiceUnavailable, "identification is not configured")
			return
		}
		if !isMultipart(r) {
			writeError(w, http.StatusBadRequest, "expected a multipart upload with an image field")
			return
		}
		data, mimeType, ok := readImage(w, r)
		if !ok {
			return
		}
		d, err := s.identifier.Diagnose(r.Context(), data, mimeType)
		s.metrics.ExternalCall("ai", err)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.identifier == nil {
			writeError(w, http.StatusServiceUnavailable, "identification is not configured")
			return
		}
		var req chatRequest
		if !decode(w, r, &req) {
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if !s.check(w, req) {
			return
		}
		reply, err := s.identifier.Chat(r.Context(), req.PlantContext, req.History, req.Message)
		s.metrics.ExternalCall("ai", err)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	}
}

func (s *Server) handleImages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.images == nil {
			writeError(w, http.StatusServiceUnavailable, "image lookup is not configured")
			return
		}
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		images, err := s.images.Images(r.Context(), name)
		s.metrics.ExternalCall("wiki", err)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Warn("Image lookup failed", "name", name, "error", err)
			writeError(w, http.StatusBadGateway, msgImagesUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, imagesResponse{Images: images})
	}
}

func (s *Server) handleSearchCatalog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.catalog == nil {
			writeError(w, http.StatusServiceUnavailable, "catalog is not configured")
			return
		}
		limit := defaultCatalogLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxCatalogLimit {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxCatalogLimit))
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, s.catalog.Search(r.URL.Query().Get("q"), limit))
	}
}

func (s *Server) handleSyncCatalog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.catalog == nil {
			writeError(w, http.StatusServiceUnavailable, "catalog is not configured")
			return
		}
		stats, err := s.catalog.Sync(r.Context())
		s.metrics.CatalogSynced(stats.Entries, err)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// enrich attaches the matching catalog guide, reference images and
// similar-plant thumbnails to an identification. All of it is best effort.
func (s *Server) enrich(ctx context.Context, id *domain.Identification) {
	if s.catalog != nil {
		for _, name := range []string{id.ScientificName, id.CommonName} {
			if name == "" {
				continue
			}
			if e, ok := s.catalog.Lookup(name); ok {
				id.CatalogEntry = e.Hash
				fillCare(&id.Care, e.Care)
				break
			}
		}
	}
	if s.images == nil {
		return
	}

	if len(id.Images) == 0 {
		name := id.ScientificName
		if name == "" {
			name = id.CommonName
		}
		images, err := s.images.Images(ctx, name)
		s.metrics.ExternalCall("wiki", err)
		if err != nil {
			s.log.Warn("Image lookup failed", "name", name, "error", err)
		} else {
			id.Images = images
		}
	}

	var names []string
	for _, sp := range id.SimilarPlants {
		if name := similarName(sp); sp.Image == "" && name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	thumbs := s.images.Thumbnails(ctx, names)
	for i := range id.SimilarPlants {
		if id.SimilarPlants[i].Image == "" {
			id.SimilarPlants[i].Image = thumbs[similarName(id.SimilarPlants[i])]
		}
	}
}

// similarName is the name a similar plant's thumbnail is looked up by.
func similarName(sp domain.SimilarPlant) string {
	if name := strings.TrimSpace(sp.ScientificName); name != "" {
		return name
	}
	return strings.TrimSpace(sp.Name)
}

// fillCare copies guide advice into the fields dst left blank.
func fillCare(dst *domain.CareGuide, guide domain.CareGuide) {
	pairs := []struct {
		dst *string
		src string
	}{
		{&dst.Watering, guide.Watering},
		{&dst.Light, guide.Light},
		{&dst.Temperature, guide.Temperature},
		{&dst.Humidity, guide.Humidity},
		{&dst.Soil, guide.Soil},
		{&dst.Fertilizer, guide.Fertilizer},
		{&dst.Pruning, guide.Pruning},
		{&dst.Repotting, guide.Repotting},
	}
	for _, p := range pairs {
		if strings.TrimSpace(*p.dst) == "" {
			*p.dst = p.src
		}
	}
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readImage pulls the "image" field out of a multipart upload and works
// out its media type.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return nil, "", false
	}
	f, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return nil, "", false
	}
	if len(data) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
		return nil, "", false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "image is empty")
		return nil, "", false
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		writeError(w, http.StatusBadRequest, "upload is not an image")
		return nil, "", false
	}
	return data, mimeType, true
}
