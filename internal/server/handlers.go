package server

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/franckalain/macrotrack/internal/analysis"
	"github.com/franckalain/macrotrack/internal/models"
)

type pendingEntry struct {
	entry   models.FoodEntry
	created time.Time
}

type analyzeData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AmountGrams any    `json:"amount_grams"`
	Image       string `json:"image"`
}

type confirmData struct {
	ID          string     `json:"id"`
	Name        *string    `json:"name"`
	AmountGrams *int       `json:"amount_grams"`
	Calories    *int       `json:"calories"`
	Protein     *int       `json:"protein"`
	Carbs       *int       `json:"carbs"`
	Fat         *int       `json:"fat"`
	ConsumedAt  *time.Time `json:"consumed_at"`
}

type historyData struct {
	Limit int `json:"limit"`
}

type goalsData struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
}

type deleteData struct {
	ID string `json:"id"`
}

type historyResponse struct {
	Items     []*models.FoodEntry  `json:"items"`
	DayTotal  models.MacroTotals   `json:"day_total"`
	WeekTotal models.MacroTotals   `json:"week_total"`
	Goals     *models.MacroGoals   `json:"goals"`
	Progress  models.MacroProgress `json:"progress"`
}

// parseAmount reads a portion size sent as a number or numeric string.
// Anything else yields 0, which the pipeline treats as the default.
func parseAmount(v any) int {
	switch a := v.(type) {
	case float64:
		if a > 0 && a < math.MaxInt32 {
			return int(math.Round(a))
		}
	case string:
		if n, err := strconv.Atoi(a); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func decodeData(msg incoming, v any) error {
	if len(msg.Data) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Data, v)
}

func (s *Server) handleAnalyze(sess *session, msg incoming) {
	var data analyzeData
	if err := decodeData(msg, &data); err != nil {
		sess.sendError(msg.RequestID, errInvalidRequest, "Invalid analyze request")
		return
	}

	img, err := decodeImage(data.Image)
	if err != nil {
		sess.logger.Info("error decoding image", zap.Error(err))
		sess.sendError(msg.RequestID, analysis.KindInvalidInput.String(), "Invalid image format")
		return
	}

	req := models.AnalysisRequest{
		Name:        data.Name,
		Description: data.Description,
		AmountGrams: parseAmount(data.AmountGrams),
		Image:       img,
	}

	start := s.now()
	result, err := s.model.Analyze(sess.ctx, req)
	if err != nil {
		if sess.ctx.Err() != nil {
			sess.logger.Debug("analysis abandoned, client gone")
			return
		}
		kind := analysis.KindOf(err)
		sess.logger.Info("analysis failed", zap.String("kind", kind.String()), zap.Error(err))
		sess.sendError(msg.RequestID, kind.String(), userMessage(kind))
		return
	}

	source := models.SourceManual
	if req.HasImage() {
		source = models.SourcePhoto
	}
	entry := models.FoodEntry{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		AmountGrams: req.Amount(),
		Calories:    result.Calories,
		Protein:     result.Protein,
		Carbs:       result.Carbs,
		Fat:         result.Fat,
		Details:     result.Details,
		Source:      source,
		ConsumedAt:  start,
	}
	if entry.Name == "" {
		entry.Name = result.Details
	}

	s.prunePending()
	s.pending.Store(entry.ID, &pendingEntry{entry: entry, created: s.now()})

	sess.logger.Info("analysis complete",
		zap.String("id", entry.ID),
		zap.Int("calories", entry.Calories),
		zap.Int("protein", entry.Protein),
		zap.Int("carbs", entry.Carbs),
		zap.Int("fat", entry.Fat),
		zap.Duration("elapsed", s.now().Sub(start)))
	sess.sendMessage(msg.RequestID, "analysis_result", entry)
}

func (p *pendingEntry) expired(now time.Time) bool {
	return p.created.Before(now.Add(-pendingTTL))
}

func (s *Server) prunePending() {
	now := s.now()
	s.pending.Range(func(k, v any) bool {
		if v.(*pendingEntry).expired(now) {
			s.pending.Delete(k)
		}
		return true
	})
}

func (s *Server) handleConfirmEntry(sess *session, msg incoming) {
	var data confirmData
	if err := decodeData(msg, &data); err != nil || data.ID == "" {
		sess.sendError(msg.RequestID, errInvalidRequest, "Missing entry ID")
		return
	}

	s.prunePending()
	v, ok := s.pending.LoadAndDelete(data.ID)
	if !ok || v.(*pendingEntry).expired(s.now()) {
		sess.sendError(msg.RequestID, errNotFound, "Analysis not found or expired")
		return
	}
	entry := v.(*pendingEntry).entry

	if data.Name != nil && *data.Name != "" {
		entry.Name = *data.Name
	}
	if data.AmountGrams != nil && *data.AmountGrams > 0 {
		entry.AmountGrams = *data.AmountGrams
	}
	for _, o := range []struct {
		src *int
		dst *int
	}{
		{data.Calories, &entry.Calories},
		{data.Protein, &entry.Protein},
		{data.Carbs, &entry.Carbs},
		{data.Fat, &entry.Fat},
	} {
		if o.src == nil {
			continue
		}
		if *o.src < 0 {
			s.pending.Store(data.ID, v)
			sess.sendError(msg.RequestID, errInvalidRequest, "Macro values must not be negative")
			return
		}
		*o.dst = *o.src
	}
	if data.ConsumedAt != nil && !data.ConsumedAt.IsZero() {
		entry.ConsumedAt = *data.ConsumedAt
	}

	if err := s.db.SaveFoodEntry(sess.ctx, &entry); err != nil {
		sess.logger.Error("error saving food entry", zap.String("id", entry.ID), zap.Error(err))
		s.pending.Store(data.ID, v)
		sess.sendError(msg.RequestID, errInternal, "Failed to save entry")
		return
	}
	recordSaved(entry.Source)

	sess.logger.Info("food entry saved", zap.String("id", entry.ID), zap.String("source", entry.Source))
	sess.sendMessage(msg.RequestID, "entry_saved", entry)
}

func (s *Server) handleGetHistory(sess *session, msg incoming) {
	var data historyData
	if err := decodeData(msg, &data); err != nil {
		sess.sendError(msg.RequestID, errInvalidRequest, "Invalid history request")
		return
	}
	limit := s.opts.HistoryLimit
	if data.Limit > 0 && data.Limit < limit {
		limit = data.Limit
	}

	resp, err := s.history(sess, limit)
	if err != nil {
		sess.logger.Error("error retrieving history", zap.Error(err))
		sess.sendError(msg.RequestID, errInternal, "Failed to retrieve history")
		return
	}
	sess.sendMessage(msg.RequestID, "history", resp)
}

func (s *Server) history(sess *session, limit int) (*historyResponse, error) {
	items, err := s.db.RecentFoodEntries(sess.ctx, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dayStart := models.StartOfDay(now)
	weekStart := models.StartOfWeek(now)
	week, err := s.db.FoodEntriesBetween(sess.ctx, weekStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	goals, err := s.db.GetGoals(sess.ctx)
	if err != nil {
		return nil, err
	}

	if items == nil {
		items = []*models.FoodEntry{}
	}
	dayTotal := models.SumSince(week, dayStart)
	return &historyResponse{
		Items:     items,
		DayTotal:  dayTotal,
		WeekTotal: models.SumSince(week, weekStart),
		Goals:     goals,
		Progress:  models.Progress(*goals, dayTotal),
	}, nil
}

func (s *Server) handleSetGoals(sess *session, msg incoming) {
	var data goalsData
	if err := decodeData(msg, &data); err != nil {
		sess.sendError(msg.RequestID, errInvalidRequest, "Invalid goals")
		return
	}
	if data.Calories < 0 || data.Protein < 0 || data.Carbs < 0 || data.Fat < 0 {
		sess.sendError(msg.RequestID, errInvalidRequest, "Goals must not be negative")
		return
	}

	goals := &models.MacroGoals{
		Calories: data.Calories,
		Protein:  data.Protein,
		Carbs:    data.Carbs,
		Fat:      data.Fat,
	}
	if err := s.db.SaveGoals(sess.ctx, goals); err != nil {
		sess.logger.Error("error saving goals", zap.Error(err))
		sess.sendError(msg.RequestID, errInternal, "Failed to save goals")
		return
	}
	sess.sendMessage(msg.RequestID, "goals_saved", goals)
}

func (s *Server) handleDeleteEntry(sess *session, msg incoming) {
	var data deleteData
	if err := decodeData(msg, &data); err != nil || data.ID == "" {
		sess.sendError(msg.RequestID, errInvalidRequest, "Missing entry ID")
		return
	}

	deleted, err := s.db.DeleteFoodEntry(sess.ctx, data.ID)
	if err != nil {
		sess.logger.Error("error deleting entry", zap.String("id", data.ID), zap.Error(err))
		sess.sendError(msg.RequestID, errInternal, "Failed to delete entry")
		return
	}
	if !deleted {
		sess.sendError(msg.RequestID, errNotFound, "Entry not found")
		return
	}
	sess.sendMessage(msg.RequestID, "entry_deleted", map[string]string{"id": data.ID})
}

// userMessage maps an analysis failure to text shown to the user.
func userMessage(kind analysis.Kind) string {
	switch kind {
	case analysis.KindNoConnection:
		return "No internet connection. Check your network and try again."
	case analysis.KindInvalidInput:
		return "Enter a food name or attach a photo."
	case analysis.KindRateLimitExceeded:
		return "Too many requests. Please wait a moment and try again."
	case analysis.KindAPIError:
		return "The analysis service returned an error."
	case analysis.KindInvalidResponse, analysis.KindNoContent, analysis.KindInvalidJSON:
		return "Could not read the analysis result. Please try again."
	case analysis.KindMaxRetriesExceeded:
		return "The analysis service is not responding. Please try again later."
	default:
		return "Failed to analyze food."
	}
}
