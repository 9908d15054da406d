// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package jobs defines the contract between pipeline components: task types,
schema-validated payloads, and deterministic idempotency keys.

Architecture:

  - Every payload is a versionless tagged struct validated at the queue
    boundary; malformed payloads are fatal and never retried.
  - Every task carries a deterministic task ID so at-least-once redelivery
    never double-applies ingestion or notification effects.
  - The job kind is the asynq task type string, not a duck-typed field.
*/
package jobs

import (
	"strconv"
	"strings"
	"time"

	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// # Task Types

const (
	TypePoll         = "crawler:poll"
	TypeCanonicalize = "crawler:canonicalize"
	TypeIngest       = "ingest:chapter"
	TypeGapRecovery  = "ingest:gap"
	TypeDispatch     = "notify:dispatch"
	TypeDeliver      = "notify:deliver"
)

// # Payloads

// PollPayload asks the poller to scrape one source subscription.
type PollPayload struct {
	SeriesSourceID string `json:"series_source_id"`
	// IsRecovery marks gap-recovery polling: lower queue priority, and the
	// resulting ingests skip the gap re-check to avoid infinite recursion.
	IsRecovery bool   `json:"is_recovery"`
	TraceID    string `json:"trace_id"`
}

// Validate reports a fatal validation error for malformed payloads.
func (p PollPayload) Validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(p.SeriesSourceID) == "" {
		fields = append(fields, apperr.FieldError{Field: "series_source_id", Message: "required"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid poll payload", fields...)
	}
	return nil
}

// CanonicalizePayload carries one scraped series discovery.
type CanonicalizePayload struct {
	Title         string   `json:"title"`
	SourceName    string   `json:"source_name"`
	SourceID      string   `json:"source_id"`
	SourceURL     string   `json:"source_url"`
	ExternalID    *string  `json:"external_id,omitempty"`
	AltTitles     []string `json:"alt_titles,omitempty"`
	Description   *string  `json:"description,omitempty"`
	CoverURL      *string  `json:"cover_url,omitempty"`
	Type          string   `json:"type"`
	Status        *string  `json:"status,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ContentRating *string  `json:"content_rating,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	TraceID       string   `json:"trace_id"`
}

func (p CanonicalizePayload) Validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(p.Title) == "" {
		fields = append(fields, apperr.FieldError{Field: "title", Message: "required"})
	}
	if strings.TrimSpace(p.SourceName) == "" {
		fields = append(fields, apperr.FieldError{Field: "source_name", Message: "required"})
	}
	if strings.TrimSpace(p.SourceID) == "" {
		fields = append(fields, apperr.FieldError{Field: "source_id", Message: "required"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid canonicalize payload", fields...)
	}
	return nil
}

// IngestPayload carries one scraped chapter for the ingestor.
type IngestPayload struct {
	SeriesSourceID string     `json:"series_source_id"`
	SeriesID       string     `json:"series_id"`
	ChapterNumber  float64    `json:"chapter_number"`
	ChapterTitle   *string    `json:"chapter_title,omitempty"`
	ChapterURL     string     `json:"chapter_url"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	IsRecovery     bool       `json:"is_recovery"`
	TraceID        string     `json:"trace_id"`
}

func (p IngestPayload) Validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(p.SeriesSourceID) == "" {
		fields = append(fields, apperr.FieldError{Field: "series_source_id", Message: "required"})
	}
	if strings.TrimSpace(p.SeriesID) == "" {
		fields = append(fields, apperr.FieldError{Field: "series_id", Message: "required"})
	}
	if p.ChapterNumber <= 0 {
		fields = append(fields, apperr.FieldError{Field: "chapter_number", Message: "must be positive"})
	}
	if strings.TrimSpace(p.ChapterURL) == "" {
		fields = append(fields, apperr.FieldError{Field: "chapter_url", Message: "required"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid ingest payload", fields...)
	}
	return nil
}

// GapRecoveryPayload asks for a gap scan over one series. At most one
// outstanding job per series exists at a time (task-ID dedup).
type GapRecoveryPayload struct {
	SeriesID string `json:"series_id"`
	TraceID  string `json:"trace_id"`
}

func (p GapRecoveryPayload) Validate() error {
	if strings.TrimSpace(p.SeriesID) == "" {
		return apperr.Validation("invalid gap recovery payload",
			apperr.FieldError{Field: "series_id", Message: "required"})
	}
	return nil
}

// DispatchPayload carries one new-release trigger toward fan-out.
type DispatchPayload struct {
	SeriesID           string  `json:"series_id"`
	TriggeringSourceID string  `json:"triggering_source_id"`
	ChapterNumber      float64 `json:"chapter_number"`
	NewChapterCount    int     `json:"new_chapter_count"`
	TraceID            string  `json:"trace_id"`
}

func (p DispatchPayload) Validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(p.SeriesID) == "" {
		fields = append(fields, apperr.FieldError{Field: "series_id", Message: "required"})
	}
	if strings.TrimSpace(p.TriggeringSourceID) == "" {
		fields = append(fields, apperr.FieldError{Field: "triggering_source_id", Message: "required"})
	}
	if p.ChapterNumber <= 0 {
		fields = append(fields, apperr.FieldError{Field: "chapter_number", Message: "must be positive"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid dispatch payload", fields...)
	}
	return nil
}

// DeliverPayload carries one resolved recipient batch for a lane.
type DeliverPayload struct {
	SeriesID        string   `json:"series_id"`
	SourceID        string   `json:"source_id"`
	SourceName      *string  `json:"source_name,omitempty"`
	ChapterNumber   float64  `json:"chapter_number"`
	NewChapterCount int      `json:"new_chapter_count"`
	RecipientIDs    []string `json:"recipient_ids"`
	IsPremium       bool     `json:"is_premium"`
	Priority        int      `json:"priority"`
	TraceID         string   `json:"trace_id"`
}

func (p DeliverPayload) Validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(p.SeriesID) == "" {
		fields = append(fields, apperr.FieldError{Field: "series_id", Message: "required"})
	}
	if p.ChapterNumber <= 0 {
		fields = append(fields, apperr.FieldError{Field: "chapter_number", Message: "must be positive"})
	}
	if len(p.RecipientIDs) == 0 {
		fields = append(fields, apperr.FieldError{Field: "recipient_ids", Message: "must not be empty"})
	}
	if p.Priority < constants.NotifyPriorityHigh || p.Priority > constants.NotifyPriorityLow {
		fields = append(fields, apperr.FieldError{Field: "priority", Message: "must be 0, 1 or 2"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid deliver payload", fields...)
	}
	return nil
}

// # Idempotency Keys
//
// Task IDs are deterministic functions of the payload so duplicate enqueues
// collapse while a task is pending or retained.

// FormatChapterNumber renders a chapter number the same way everywhere keys
// are built, so 10 and 10.0 collapse to the same key.
func FormatChapterNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// PollTaskID dedups outstanding polls per source and recovery mode.
func PollTaskID(seriesSourceID string, isRecovery bool) string {
	if isRecovery {
		return "poll:" + seriesSourceID + ":recovery"
	}
	return "poll:" + seriesSourceID
}

// IngestTaskID dedups a chapter arriving repeatedly from the same source.
func IngestTaskID(seriesSourceID string, chapterNumber float64) string {
	return "ingest:" + seriesSourceID + ":" + FormatChapterNumber(chapterNumber)
}

// GapTaskID dedups gap-recovery jobs by series, so repeated gaps don't pile
// up work.
func GapTaskID(seriesID string) string {
	return "gap:" + seriesID
}

// DispatchTaskID dedups dispatch triggers within a coarse time bucket, so a
// burst of retries for the same release collapses into one job.
func DispatchTaskID(seriesID, sourceID string, chapterNumber float64, at time.Time) string {
	bucket := at.Unix() / int64(constants.DispatchBucket.Seconds())
	return "dispatch:" + seriesID + ":" + sourceID + ":" +
		FormatChapterNumber(chapterNumber) + ":" + strconv.FormatInt(bucket, 10)
}
