package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/devpulse/pipewatch/pkg/alert"
	"github.com/devpulse/pipewatch/pkg/notify"
	"github.com/devpulse/pipewatch/pkg/push"
	"github.com/devpulse/pipewatch/pkg/slack"
)

const maxHistoryLimit = 200

// rulePayload is the create/update request body for a rule.
type rulePayload struct {
	Name       string   `json:"name"`
	Enabled    *bool    `json:"enabled"`
	EventTypes []string `json:"event_types"`
	Branches   []string `json:"branches"`
	Channels   []string `json:"channels"`
}

func (p *rulePayload) validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}

	if len(p.EventTypes) == 0 {
		return errors.New("at least one event type is required")
	}

	known := map[string]bool{
		notify.EventBuildFailure:   true,
		notify.EventBuildSuccess:   true,
		notify.EventBuildCancelled: true,
		notify.EventDeployment:     true,
	}

	for _, et := range p.EventTypes {
		if !known[et] {
			return errors.New("unknown event type: " + et)
		}
	}

	return nil
}

func (p *rulePayload) apply(rule *notify.Rule) {
	rule.Name = p.Name
	rule.EventTypes = p.EventTypes

	rule.Enabled = true
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}

	rule.Branches = p.Branches
	if rule.Branches == nil {
		rule.Branches = []string{}
	}

	rule.Channels = p.Channels
	if len(rule.Channels) == 0 {
		rule.Channels = []string{"slack"}
	}
}

func (s *server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.repo.ListRules(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list rules")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if err := payload.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var rule notify.Rule

	payload.apply(&rule)

	if err := s.repo.CreateRule(r.Context(), &rule); err != nil {
		s.log.WithError(err).Error("Failed to create rule")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (s *server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rule, err := s.repo.GetRule(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"rule not found"})

			return
		}

		s.log.WithError(err).Error("Failed to get rule")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (s *server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if err := payload.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	rule := notify.Rule{ID: uint(id)}

	payload.apply(&rule)

	if err := s.repo.UpdateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"rule not found"})

			return
		}

		s.log.WithError(err).Error("Failed to update rule")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (s *server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.repo.DeleteRule(r.Context(), uint(id)); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"rule not found"})

			return
		}

		s.log.WithError(err).Error("Failed to delete rule")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleNotificationHistory(
	w http.ResponseWriter, r *http.Request,
) {
	limit, ok := queryInt(w, r, "limit", 50, 1, maxHistoryLimit)
	if !ok {
		return
	}

	entries, err := s.repo.ListHistory(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list history")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	if channel != "" || status != "" {
		filtered := entries[:0]

		for _, e := range entries {
			if channel != "" && e.Channel != channel {
				continue
			}

			if status != "" && e.Status != status {
				continue
			}

			filtered = append(filtered, e)
		}

		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// handleNotificationStatus reports delivery readiness and rule counts.
func (s *server) handleNotificationStatus(
	w http.ResponseWriter, r *http.Request,
) {
	rules, err := s.repo.ListRules(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list rules")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	enabled := 0

	for _, rule := range rules {
		if rule.Enabled {
			enabled++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slack_configured": s.poster != nil,
		"rules_total":      len(rules),
		"rules_enabled":    enabled,
	})
}

func (s *server) handleTestNotification(
	w http.ResponseWriter, r *http.Request,
) {
	if s.poster == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{"no slack webhook configured"})

		return
	}

	msg := slack.Message{
		Text:   "pipewatch test notification",
		Blocks: []slack.Block{slack.Section("This is a *test* notification from pipewatch.")},
	}

	if err := s.poster.Post(r.Context(), msg); err != nil {
		s.log.WithError(err).Error("Test notification failed")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"slack delivery failed"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// processEventPayload is the body of a manual event injection.
type processEventPayload struct {
	EventType string `json:"event_type"`
	Branch    string `json:"branch"`
	Message   string `json:"message"`
}

func (s *server) handleProcessEvent(w http.ResponseWriter, r *http.Request) {
	var payload processEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if payload.EventType == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"event_type is required"})

		return
	}

	rules, err := s.repo.ListRules(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list rules")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	deliveries := alert.Evaluate(rules, payload.EventType, payload.Branch)

	message := payload.Message
	if message == "" {
		message = "pipeline event: " + payload.EventType
	}

	sent := 0

	for _, d := range deliveries {
		entry := notify.HistoryEntry{
			RuleID:    d.Rule.ID,
			RuleName:  d.Rule.Name,
			EventType: payload.EventType,
			Channel:   d.Channel,
			Message:   message,
			Status:    notify.StatusSent,
		}

		if d.Channel == "slack" && s.poster != nil {
			if err := s.poster.Post(r.Context(), slack.Message{Text: message}); err != nil {
				s.log.WithError(err).WithField("rule", d.Rule.Name).
					Warn("Slack delivery failed")

				entry.Status = notify.StatusFailed
				entry.Error = err.Error()
			}
		}

		if entry.Status == notify.StatusSent {
			sent++
		}

		if err := s.repo.RecordHistory(r.Context(), &entry); err != nil {
			s.log.WithError(err).Warn("Failed to record history")
		}

		s.hub.Broadcast(push.EventNotification, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matched": len(deliveries),
		"sent":    sent,
	})
}
