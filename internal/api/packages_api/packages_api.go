package packages_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/BearBump/TrackSync/internal/services/packages"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// PackagesAPI serves the read side built from published snapshots.
type PackagesAPI struct {
	svc  *packages.Service
	opts coordinator.Options
}

// New returns the API; opts carries the display filters applied to package listings.
func New(svc *packages.Service, opts coordinator.Options) *PackagesAPI {
	return &PackagesAPI{svc: svc, opts: opts}
}

type summaryResponse struct {
	Total    int                         `json:"total"`
	Statuses []*coordinator.StatusBucket `json:"statuses"`
}

type packagesResponse struct {
	Packages []*models.PackageRecord `json:"packages"`
}

type eventsResponse struct {
	Events []*models.PackageEvent `json:"events"`
}

func (a *PackagesAPI) Routes(r chi.Router) {
	r.Get("/summary", a.getSummary)
	r.Get("/packages", a.listPackages)
	r.Get("/packages/{number}", a.getPackage)
	r.Get("/packages/{number}/events", a.listPackageEvents)
}

func (a *PackagesAPI) getSummary(w http.ResponseWriter, r *http.Request) {
	buckets, err := a.svc.GetSummary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	total := 0
	for _, b := range buckets {
		total += b.Quantity
	}
	writeJSON(w, http.StatusOK, summaryResponse{Total: total, Statuses: buckets})
}

func (a *PackagesAPI) listPackages(w http.ResponseWriter, r *http.Request) {
	recs, err := a.svc.ListPackages(r.Context(), a.opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, packagesResponse{Packages: recs})
}

func (a *PackagesAPI) getPackage(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetPackage(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *PackagesAPI) listPackageEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
		return
	}

	evs, err := a.svc.ListPackageEvents(r.Context(), chi.URLParam(r, "number"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: evs})
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, packages.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	slog.Error("packages api", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
