package handler

import (
	"net/http"

	"go.uber.org/zap"

	"camerabridge/internal/codec"
	"camerabridge/internal/service"
)

const maxInventoryBytes = 4 << 20

func inventoryCodec(r *http.Request) (codec.Codec, error) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	return codec.ForFormat(format)
}

func contentTypeFor(format string) string {
	if format == "json" {
		return "application/json"
	}
	return "application/yaml"
}

// ExportCameras writes the registry as an inventory file
func (h *CameraHandler) ExportCameras(w http.ResponseWriter, r *http.Request) {
	c, err := inventoryCodec(r)
	if err != nil {
		writeError(w, h.logger, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(c.Format()))
	w.WriteHeader(http.StatusOK)
	if err := c.Export(h.svc.ListCameras(), w); err != nil {
		h.logger.Error("inventory export failed", zap.String("format", c.Format()), zap.Error(err))
	}
}

type importResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	service.ImportResult
}

// ImportCameras adds every device of an uploaded inventory
func (h *CameraHandler) ImportCameras(w http.ResponseWriter, r *http.Request) {
	c, err := inventoryCodec(r)
	if err != nil {
		writeError(w, h.logger, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}
	devices, err := c.Parse(http.MaxBytesReader(w, r.Body, maxInventoryBytes))
	if err != nil {
		writeError(w, h.logger, "Invalid inventory", err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.svc.ImportCameras(r.Context(), devices)
	if err != nil {
		h.fail(w, "Import failed", err)
		return
	}
	writeJSON(w, h.logger, importResponse{Success: true, Count: len(res.Added), ImportResult: res}, http.StatusOK)
}
