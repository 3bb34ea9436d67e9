package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/siriyd/SMART-CDN/internal/edgecache"
	"github.com/siriyd/SMART-CDN/internal/engine"
	"github.com/siriyd/SMART-CDN/internal/forecast"
	"go.uber.org/zap"
)

// handleDecide runs one decision cycle over the posted snapshot and
// returns the forecast and plans without touching any edge cache.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req engine.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), decideTimeout)
	defer cancel()

	resp, err := s.engine.Decide(ctx, req)
	if err != nil {
		if engine.IsClientError(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("decision cycle failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "decision cycle failed")
		return
	}

	s.metrics.RecordDecisions(len(resp.PrefetchPlan), len(resp.EvictionPlan), len(resp.TTLUpdates))

	if s.db != nil {
		if err := s.db.RecordDecisions(ctx, resp); err != nil {
			s.logger.Warn("record decisions", zap.Error(err))
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleDecideAndApply runs a decision cycle and immediately pushes the
// plans into the configured edge caches. A body without request logs
// falls back to the persisted log when the database is available.
func (s *Server) handleDecideAndApply(w http.ResponseWriter, r *http.Request) {
	var req engine.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), decideTimeout)
	defer cancel()

	if len(req.RequestLogs) == 0 && s.db != nil {
		if err := s.loadSnapshotFromDB(ctx, &req); err != nil {
			s.logger.Error("load snapshot", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to load request snapshot")
			return
		}
	}

	resp, err := s.engine.Decide(ctx, req)
	if err != nil {
		if engine.IsClientError(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("decision cycle failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "decision cycle failed")
		return
	}

	results := s.applier.ApplyDecisions(ctx, resp)
	s.metrics.RecordDecisions(len(resp.PrefetchPlan), len(resp.EvictionPlan), len(resp.TTLUpdates))

	if s.db != nil {
		if err := s.db.RecordDecisions(ctx, resp); err != nil {
			s.logger.Warn("record decisions", zap.Error(err))
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions":     resp,
		"apply_results": results,
	})
}

// loadSnapshotFromDB fills an empty decision request from the persisted
// request log, registered content and edge capacity snapshots.
func (s *Server) loadSnapshotFromDB(ctx context.Context, req *engine.DecisionRequest) error {
	window := req.TimeWindowMinutes
	if window <= 0 {
		window = 60
	}

	logs, err := s.db.RecentRequestLogs(ctx, time.Duration(window)*time.Minute)
	if err != nil {
		return err
	}
	req.RequestLogs = logs

	if len(req.ContentMetadata) == 0 {
		metadata, err := s.db.ListContentMetadata(ctx)
		if err != nil {
			return err
		}
		req.ContentMetadata = metadata
	}

	if len(req.EdgeConstraints) == 0 {
		constraints, err := s.db.ListEdgeConstraints(ctx)
		if err != nil {
			return err
		}
		req.EdgeConstraints = constraints
	}

	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	claims, err := s.auth.ValidateJWT(token)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

// handleRequestLog appends one request event to the persisted log the
// predictor later consumes.
func (s *Server) handleRequestLog(w http.ResponseWriter, r *http.Request) {
	var event forecast.RequestEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if event.ContentID == "" || event.Timestamp.IsZero() {
		s.writeError(w, http.StatusBadRequest, "content_id and request_timestamp are required")
		return
	}

	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "request log persistence is disabled")
		return
	}

	if err := s.db.InsertRequestLog(r.Context(), event); err != nil {
		s.logger.Error("insert request log", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store request log")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "logged"})
}

type edgeRegistration struct {
	EdgeID     string `json:"edge_id"`
	Region     string `json:"region"`
	CapacityMB int    `json:"cache_capacity_mb"`
	UsageMB    int    `json:"current_usage_mb"`
	IsActive   *bool  `json:"is_active"`
}

// handleRegisterEdge registers an edge node or refreshes its capacity
// snapshot; the stored rows feed ListEdgeConstraints on later
// database-backed decision cycles.
func (s *Server) handleRegisterEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeRegistration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EdgeID == "" {
		s.writeError(w, http.StatusBadRequest, "edge_id is required")
		return
	}
	if req.CapacityMB <= 0 {
		req.CapacityMB = 100
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "edge registry persistence is disabled")
		return
	}

	if err := s.db.UpsertEdgeNode(r.Context(), req.EdgeID, req.Region, req.CapacityMB, req.UsageMB, active); err != nil {
		s.logger.Error("register edge", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to register edge")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "registered", "edge_id": req.EdgeID})
}

// edgeCache resolves the {edge_id} path variable to a configured cache,
// writing a 404 when the edge is unknown.
func (s *Server) edgeCache(w http.ResponseWriter, r *http.Request) (*edgecache.Cache, bool) {
	edgeID := mux.Vars(r)["edge_id"]
	cache, ok := s.edges[edgeID]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown edge: "+edgeID)
		return nil, false
	}
	return cache, true
}

func (s *Server) handleEdgeCacheStats(w http.ResponseWriter, r *http.Request) {
	cache, ok := s.edgeCache(w, r)
	if !ok {
		return
	}

	stats, err := cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("edge cache stats", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

type prefetchRequest struct {
	ContentID  string                 `json:"content_id"`
	Data       map[string]interface{} `json:"data"`
	TTLSeconds int                    `json:"ttl_seconds"`
}

func (s *Server) handleEdgeCachePrefetch(w http.ResponseWriter, r *http.Request) {
	cache, ok := s.edgeCache(w, r)
	if !ok {
		return
	}

	var req prefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContentID == "" {
		s.writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	data := req.Data
	if data == nil {
		data = map[string]interface{}{"content_id": req.ContentID}
	}

	if err := cache.Set(r.Context(), req.ContentID, data, time.Duration(req.TTLSeconds)*time.Second); err != nil {
		s.logger.Error("edge cache prefetch", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to cache content")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "cached", "content_id": req.ContentID})
}

func (s *Server) handleEdgeCacheGet(w http.ResponseWriter, r *http.Request) {
	cache, ok := s.edgeCache(w, r)
	if !ok {
		return
	}
	contentID := mux.Vars(r)["content_id"]

	entry, found, err := cache.Get(r.Context(), contentID)
	if err != nil {
		s.logger.Error("edge cache get", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read cache")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "content not cached: "+contentID)
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleEdgeCacheDelete(w http.ResponseWriter, r *http.Request) {
	cache, ok := s.edgeCache(w, r)
	if !ok {
		return
	}
	contentID := mux.Vars(r)["content_id"]

	deleted, err := cache.Delete(r.Context(), contentID)
	if err != nil {
		s.logger.Error("edge cache delete", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete content")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted, "content_id": contentID})
}

type ttlUpdateRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

func (s *Server) handleEdgeCacheTTL(w http.ResponseWriter, r *http.Request) {
	cache, ok := s.edgeCache(w, r)
	if !ok {
		return
	}
	contentID := mux.Vars(r)["content_id"]

	var req ttlUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TTLSeconds < 1 {
		s.writeError(w, http.StatusBadRequest, "ttl_seconds must be positive")
		return
	}

	updated, err := cache.UpdateTTL(r.Context(), contentID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		s.logger.Error("edge cache ttl update", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to update ttl")
		return
	}
	if !updated {
		s.writeError(w, http.StatusNotFound, "content not cached: "+contentID)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true, "content_id": contentID})
}

func (s *Server) handleBaselineStats(w http.ResponseWriter, r *http.Request) {
	edgeID := mux.Vars(r)["edge_id"]

	stats, err := s.baseline.CacheStats(r.Context(), edgeID)
	if err != nil {
		s.logger.Error("baseline stats", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read baseline stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// handleBaselineEvict runs one control-arm eviction pass. strategy is
// "lru" or "lfu"; max_items is the post-eviction item count target.
func (s *Server) handleBaselineEvict(w http.ResponseWriter, r *http.Request) {
	edgeID := mux.Vars(r)["edge_id"]

	strategy := strings.ToLower(r.URL.Query().Get("strategy"))
	maxItems, err := strconv.Atoi(r.URL.Query().Get("max_items"))
	if err != nil || maxItems < 0 {
		s.writeError(w, http.StatusBadRequest, "max_items must be a non-negative integer")
		return
	}

	var evicted []string
	switch strategy {
	case "lru":
		evicted, err = s.baseline.EvictLRU(r.Context(), edgeID, maxItems)
	case "lfu":
		evicted, err = s.baseline.EvictLFU(r.Context(), edgeID, maxItems)
	default:
		s.writeError(w, http.StatusBadRequest, "strategy must be lru or lfu")
		return
	}
	if err != nil {
		s.logger.Error("baseline evict", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "eviction failed")
		return
	}
	if evicted == nil {
		evicted = []string{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategy": strategy,
		"evicted":  evicted,
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
