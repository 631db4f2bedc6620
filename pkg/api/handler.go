package api

import (
	"encoding/json"
	"net/http"

	"github.com/subsurface-tools/dataload/pkg/kit"
	"github.com/subsurface-tools/dataload/pkg/manifest"
)

// NewRouter returns an http.Handler with all API routes.
func NewRouter(s *Service) http.Handler {
	mux := http.NewServeMux()
	h := &handler{
		generate: logging(s.Log, "generate")(generateEndpoint(s)),
		validate: logging(s.Log, "validate")(validateEndpoint(s)),
		schemas:  logging(s.Log, "schemas")(listSchemasEndpoint(s)),
		svc:      s,
	}

	mux.HandleFunc("POST /v1/manifests/generate", h.handleGenerate)
	mux.HandleFunc("POST /v1/manifests/validate", h.handleValidate)
	mux.HandleFunc("GET /v1/schemas", h.handleSchemas)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	return cors(mux)
}

type handler struct {
	generate kit.Endpoint
	validate kit.Endpoint
	schemas  kit.Endpoint
	svc      *Service
}

// --- generate ---

type httpGenerateRequest struct {
	CSV          string         `json:"csv"`
	Template     map[string]any `json:"template"`
	ArrayParent  string         `json:"array_parent,omitempty"`
	ObjectParent string         `json:"object_parent,omitempty"`
	KindParent   string         `json:"kind_parent,omitempty"`
	LegalTag     string         `json:"legal_tag,omitempty"`
	ACLViewer    string         `json:"acl_viewer,omitempty"`
	ACLOwner     string         `json:"acl_owner,omitempty"`
	Required     string         `json:"required_template,omitempty"`
}

func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
	var req httpGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.generate(r.Context(), &generateReq{
		CSV:      req.CSV,
		Template: req.Template,
		Opts: manifest.Options{
			ArrayParent:  req.ArrayParent,
			ObjectParent: req.ObjectParent,
			KindParent:   req.KindParent,
			LegalTag:     req.LegalTag,
			ACLViewer:    req.ACLViewer,
			ACLOwner:     req.ACLOwner,
			RequiredJSON: req.Required,
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- validate ---

type httpValidateRequest struct {
	Document map[string]any `json:"document"`
	SchemaID string         `json:"schema_id"`
}

func (h *handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
	var req httpValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.validate(r.Context(), &validateReq{Document: req.Document, SchemaID: req.SchemaID})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- schemas ---

func (h *handler) handleSchemas(w http.ResponseWriter, r *http.Request) {
	resp, err := h.schemas(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status  string `json:"status"`
	Schemas int    `json:"schemas"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	count := 0
	if h.svc.Catalog != nil {
		count = h.svc.Catalog.Len()
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Schemas: count})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
