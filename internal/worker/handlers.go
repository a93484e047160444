package worker

import (
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/heritagewhisper/keeper/internal/anchor"
	gormdb "github.com/heritagewhisper/keeper/internal/db/gorm"
	"github.com/heritagewhisper/keeper/internal/quality"
	"github.com/heritagewhisper/keeper/internal/worker/sse"
	"github.com/heritagewhisper/keeper/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// ====================
// Ops endpoints
// ====================

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if err := s.store.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// ====================
// Prompt lifecycle
// ====================

func (s *Service) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.promptStore.ListActive(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts})
}

type createPromptRequest struct {
	PromptText   string `json:"prompt_text"`
	AnchorEntity string `json:"anchor_entity"`
	AnchorYear   int    `json:"anchor_year"`
	Tier         int    `json:"tier"`
}

func (s *Service) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req createPromptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	text := strings.TrimSpace(req.PromptText)
	result := quality.Validate(text)
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "prompt failed quality validation",
			"issues": result.Issues,
			"score":  result.Score,
		})
		return
	}

	tier := req.Tier
	if tier != models.TierMilestone {
		tier = models.TierPostSave
	}

	entity := strings.TrimSpace(req.AnchorEntity)
	p := &models.Prompt{
		UserID:       userID(r),
		PromptText:   text,
		AnchorEntity: gormdb.NullString(entity),
		AnchorYear:   gormdb.NullInt64(int64(req.AnchorYear)),
		AnchorHash:   anchor.Hash(entity, req.AnchorYear, text),
		Tier:         tier,
		PromptScore:  result.Score,
	}

	err := s.promptStore.CreateActive(r.Context(), p)
	if errors.Is(err, gormdb.ErrDuplicateAnchor) {
		writeError(w, http.StatusBadRequest, "a prompt with this anchor already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create prompt")
		return
	}

	s.sseBroadcaster.Publish(sse.EventPromptCreated, p.UserID, p)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Service) handleListQueued(w http.ResponseWriter, r *http.Request) {
	items, err := s.promptStore.ListQueued(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queued prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": items})
}

func (s *Service) handleListArchived(w http.ResponseWriter, r *http.Request) {
	items, err := s.promptStore.ListArchived(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list archived prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": items})
}

func (s *Service) handleNextPrompt(w http.ResponseWriter, r *http.Request) {
	surface := models.Surface(r.URL.Query().Get("surface"))
	if surface.Index() < 0 {
		writeError(w, http.StatusBadRequest, "unknown surface")
		return
	}

	uid := userID(r)
	candidates, err := s.promptStore.ListActive(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list prompts")
		return
	}

	pick, err := s.rotator.Next(r.Context(), uid, surface, candidates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rotation failed")
		return
	}
	if pick == nil {
		// Show nothing rather than repeat within the window.
		writeJSON(w, http.StatusOK, map[string]interface{}{"prompt": nil})
		return
	}

	if err := s.promptStore.IncrementShown(r.Context(), uid, pick.ID); err != nil {
		log.Warn().Err(err).Str("prompt_id", pick.ID).Msg("increment shown failed")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompt": pick})
}

type promptIDRequest struct {
	PromptID string `json:"promptId"`
}

func (s *Service) handleDismissPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	uid := userID(r)

	err := s.promptStore.Promote(r.Context(), uid, req.PromptID, models.PromptStatusDismissed)
	if errors.Is(err, gormdb.ErrNotFound) {
		// Catalog prompts dismiss through their own table.
		err = s.promptStore.DismissCatalogPrompt(r.Context(), uid, req.PromptID)
	}
	if errors.Is(err, gormdb.ErrNotFound) {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to dismiss prompt")
		return
	}

	if err := s.rotator.MarkDismissed(r.Context(), uid, req.PromptID); err != nil {
		log.Warn().Err(err).Str("prompt_id", req.PromptID).Msg("rotation dismiss mark failed")
	}

	s.sseBroadcaster.Publish(sse.EventPromptDismissed, uid, map[string]string{"id": req.PromptID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Service) handleQueuePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	uid := userID(r)

	err := s.promptStore.Promote(r.Context(), uid, req.PromptID, models.PromptStatusQueued)
	if errors.Is(err, gormdb.ErrNotFound) {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}
	if errors.Is(err, gormdb.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, "dismissed prompts must be restored before queueing")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to queue prompt")
		return
	}

	s.sseBroadcaster.Publish(sse.EventPromptQueued, uid, map[string]string{"id": req.PromptID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Service) handleRestorePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	uid := userID(r)

	restored, err := s.promptStore.Restore(r.Context(), uid, req.PromptID)
	switch {
	case errors.Is(err, gormdb.ErrNotFound):
		writeError(w, http.StatusNotFound, "no restorable prompt found")
		return
	case errors.Is(err, gormdb.ErrWrongOutcome):
		writeError(w, http.StatusConflict, "only skipped prompts can be restored")
		return
	case errors.Is(err, gormdb.ErrDuplicateAnchor):
		writeError(w, http.StatusConflict, "a newer prompt already covers this memory")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to restore prompt")
		return
	}

	s.sseBroadcaster.Publish(sse.EventPromptRestored, uid, restored)
	writeJSON(w, http.StatusOK, restored)
}

func (s *Service) handleCleanup(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dryRun") == "true"
	verbose := r.URL.Query().Get("verbose") == "true"

	reports, err := s.promptStore.Cleanup(r.Context(), userID(r), dryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	resp := map[string]interface{}{
		"dry_run": dryRun,
		"flagged": len(reports),
	}
	if verbose {
		resp["prompts"] = reports
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleEmergencyCleanup(w http.ResponseWriter, r *http.Request) {
	reports, err := s.promptStore.EmergencyCleanup(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "emergency cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": len(reports),
		"prompts": reports,
	})
}

type queueNextRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

func (s *Service) handleQueueNext(w http.ResponseWriter, r *http.Request) {
	var req queueNextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	uid := userID(r)

	if _, ok := s.catalog.Category(req.Category); !ok {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text != "" {
		if !s.catalog.Contains(req.Category, text) {
			writeError(w, http.StatusBadRequest, "prompt is not part of this category")
			return
		}
	} else {
		// No text: queue the category's next unseen prompt.
		exclude, err := s.catalogTextsSeen(r, uid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to inspect queue")
			return
		}
		next, ok := s.catalog.NextAfter(req.Category, exclude)
		if !ok {
			writeError(w, http.StatusNotFound, "category is exhausted")
			return
		}
		text = next
	}

	created, err := s.promptStore.QueueCatalogPrompt(r.Context(), uid, text, req.Category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to queue prompt")
		return
	}

	s.sseBroadcaster.Publish(sse.EventPromptQueued, uid, created)
	writeJSON(w, http.StatusCreated, created)
}

// catalogTextsSeen collects catalog prompt texts the user already queued
// or dismissed, so queue-next never repeats one.
func (s *Service) catalogTextsSeen(r *http.Request, uid string) (map[string]bool, error) {
	seen := make(map[string]bool)

	queued, err := s.promptStore.ListQueued(r.Context(), uid)
	if err != nil {
		return nil, err
	}
	for _, item := range queued {
		if item.Source == models.SourceCatalog {
			seen[item.PromptText] = true
		}
	}

	archived, err := s.promptStore.ListArchived(r.Context(), uid)
	if err != nil {
		return nil, err
	}
	for _, item := range archived {
		if item.Source == models.SourceCatalog {
			seen[item.PromptText] = true
		}
	}
	return seen, nil
}

// ====================
// Stories
// ====================

func (s *Service) handleListStories(w http.ResponseWriter, r *http.Request) {
	limit := gormdb.ParseLimitParam(r.URL.Query().Get("limit"), 50, 500)
	stories, err := s.storyStore.List(r.Context(), userID(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stories": stories})
}

type createStoryRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Year     int    `json:"year"`
	PromptID string `json:"promptId"`
}

func (s *Service) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "story content is required")
		return
	}

	uid := userID(r)
	story := models.NewStory("", uid, strings.TrimSpace(req.Title), req.Content, req.Year, req.PromptID)
	if err := s.storyStore.Create(r.Context(), story); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save story")
		return
	}

	// Answering a prompt resolves it. A stale or already-resolved prompt
	// ID must not fail the save.
	if req.PromptID != "" {
		err := s.promptStore.Resolve(r.Context(), uid, req.PromptID, models.OutcomeAnswered)
		if err != nil && !errors.Is(err, gormdb.ErrNotFound) {
			log.Warn().Err(err).Str("prompt_id", req.PromptID).Msg("resolve answered prompt failed")
		}
		if err == nil {
			s.sseBroadcaster.Publish(sse.EventPromptResolved, uid, map[string]string{
				"id":      req.PromptID,
				"outcome": string(models.OutcomeAnswered),
			})
		}
	}

	// Generation runs in the background; the save response never waits on
	// the model.
	if s.generator != nil {
		go func(st *models.Story) {
			if _, err := s.generator.OnStorySaved(s.ctx, st); err != nil {
				log.Warn().Err(err).Str("story_id", st.ID).Msg("post-save generation failed")
			}
		}(story)
	}

	writeJSON(w, http.StatusCreated, story)
}

// ====================
// Chapters
// ====================

func (s *Service) handleListChapters(w http.ResponseWriter, r *http.Request) {
	chapterList, err := s.chapterStore.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chapters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chapters": chapterList})
}

func (s *Service) handleOrganizeChapters(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	organized, err := s.organizer.Organize(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "chapter organization failed")
		return
	}

	s.sseBroadcaster.Publish(sse.EventChaptersUpdated, uid, map[string]int{"chapters": len(organized)})
	writeJSON(w, http.StatusOK, map[string]interface{}{"chapters": organized})
}

// ====================
// Events
// ====================

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	client, err := s.sseBroadcaster.AddClient(w, userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(": connected\n\n")); err == nil {
		client.Flusher.Flush()
	}

	select {
	case <-r.Context().Done():
		s.sseBroadcaster.RemoveClient(client)
	case <-client.Done:
	}
}
