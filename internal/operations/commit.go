package operations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/logging"
)

// Private extended properties set on committed proposals.
const (
	PropertyProposedEventID = "calmuxProposedEventId"
	PropertyTaskID          = "calmuxTaskId"
	PropertyCommitID        = "calmuxCommitId"
)

// Proposal states.
const (
	ProposalProposed     = "proposed"
	ProposalUserAdjusted = "user-adjusted"
	ProposalCommitted    = "committed"
)

// ProposedEvent is a slot suggested by the scheduling assistant for a task.
// Start and End accept a date, an RFC3339 timestamp or a local timestamp,
// which is placed in the calendar's zone.
type ProposedEvent struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	Title     string `json:"title"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Status    string `json:"status,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// CommitRequest writes proposals to one calendar.
type CommitRequest struct {
	Account         string          `json:"account,omitempty"`
	Calendar        string          `json:"calendar,omitempty"`
	ProposedEvents  []ProposedEvent `json:"proposedEvents"`
	AllowDuplicates bool            `json:"allowDuplicates,omitempty"`
}

// SkippedProposal is a proposal that was not written.
type SkippedProposal struct {
	ProposedEventID string `json:"proposedEventId"`
	EventID         string `json:"eventId,omitempty"`
	Reason          string `json:"reason"`
}

// CommitResponse reports the outcome per proposal. A failed proposal does not
// stop the others.
type CommitResponse struct {
	CommitID      string            `json:"commitId"`
	CreatedEvents []calendar.Event  `json:"createdEvents"`
	Errors        []string          `json:"errors"`
	Skipped       []SkippedProposal `json:"skipped,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// CommitProposed creates an event for every proposal not committed yet.
// Proposals are created one after another so that later ones see the earlier
// ones during duplicate detection.
func (o *Operations) CommitProposed(ctx context.Context, req CommitRequest) (*CommitResponse, error) {
	if len(req.ProposedEvents) == 0 {
		return nil, invalid("proposedEvents", "at least one proposed event is required")
	}
	seen := map[string]bool{}
	for i, p := range req.ProposedEvents {
		if p.ID == "" {
			return nil, invalid(fmt.Sprintf("proposedEvents[%d].id", i), "proposal ID is required")
		}
		if seen[p.ID] {
			return nil, invalid(fmt.Sprintf("proposedEvents[%d].id", i), "proposal %s is listed twice", p.ID)
		}
		seen[p.ID] = true
	}

	t, err := o.resolveTarget(ctx, req.Account, req.Calendar)
	if err != nil {
		return nil, err
	}

	resp := &CommitResponse{
		CommitID:      uuid.NewString(),
		CreatedEvents: []calendar.Event{},
		Errors:        []string{},
		Warnings:      t.warnings,
	}
	logger := logging.WithOperation(o.logger, "commit_proposed").With(
		logging.Account(t.account),
		logging.Calendar(t.calendarID),
		slog.String("commit_id", resp.CommitID))

	for _, p := range req.ProposedEvents {
		if strings.EqualFold(p.Status, ProposalCommitted) {
			resp.Skipped = append(resp.Skipped, SkippedProposal{ProposedEventID: p.ID, Reason: "already committed"})
			continue
		}

		existing, err := o.findProposal(ctx, t, p.ID)
		if err != nil {
			resp.Warnings = append(resp.Warnings,
				fmt.Sprintf("could not check whether proposal %s was committed before: %s", p.ID, calendar.Reason(err)))
		}
		if existing != nil {
			resp.Skipped = append(resp.Skipped, SkippedProposal{
				ProposedEventID: p.ID,
				EventID:         existing.ID,
				Reason:          "event already exists",
			})
			continue
		}

		created, err := o.commitOne(ctx, t, req, p, resp.CommitID)
		if err != nil {
			logger.Warn("failed to commit proposal", slog.String("proposal", p.ID), logging.Err(err))
			resp.Errors = append(resp.Errors, fmt.Sprintf("Failed to create event '%s': %s", p.Title, err))
			continue
		}
		resp.CreatedEvents = append(resp.CreatedEvents, *created.Event)
		resp.Warnings = append(resp.Warnings, created.Warnings...)
	}

	logger.Info("committed proposals",
		slog.Int("created", len(resp.CreatedEvents)),
		slog.Int("failed", len(resp.Errors)),
		slog.Int("skipped", len(resp.Skipped)))
	return resp, nil
}

// findProposal returns the event created for a proposal, if any.
func (o *Operations) findProposal(ctx context.Context, t *target, proposalID string) (*calendar.Event, error) {
	events, err := t.svc.ListEvents(ctx, t.calendarID, calendar.EventQuery{
		PrivateExtendedProperty: []string{PropertyProposedEventID + "=" + proposalID},
		ExpandRecurring:         true,
		MaxResults:              1,
	})
	if err != nil {
		return nil, err
	}
	for i := range events {
		if !events[i].IsCancelled() {
			return &events[i], nil
		}
	}
	return nil, nil
}

func (o *Operations) commitOne(ctx context.Context, t *target, req CommitRequest, p ProposedEvent, commitID string) (*CreateResponse, error) {
	tz := t.loc.String()
	start, err := calendar.ParseEventTime(p.Start, tz)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	end, err := calendar.ParseEventTime(p.End, tz)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}

	props := map[string]string{
		PropertyProposedEventID: p.ID,
		PropertyCommitID:        commitID,
	}
	if p.TaskID != "" {
		props[PropertyTaskID] = p.TaskID
	}
	return o.Create(ctx, CreateRequest{
		Account:           t.account,
		Calendar:          t.calendarID,
		Title:             p.Title,
		Start:             start,
		End:               end,
		PrivateProperties: props,
		AllowDuplicates:   req.AllowDuplicates,
	})
}
