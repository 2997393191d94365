package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/operations"
	"github.com/teemow/calmux/internal/recurrence"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/batch"
	"github.com/teemow/calmux/internal/tools/common"
)

// RegisterSchedulingTools registers the tools that write to calendars
func RegisterSchedulingTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	createEventTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create a calendar event. The calendar is checked for duplicates and conflicting "+
			"events first; a near-identical event blocks creation unless allowDuplicates is set. "+
			"Supports recurring, out-of-office, focus time and working location events and Google Meet."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("account",
			mcp.Description("Account name (default: the server's default account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: primary)"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start. "+timeDescription+". A date creates an all-day event."),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End (exclusive). "+timeDescription),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone for local timestamps (default: the calendar's time zone)"),
		),
		mcp.WithString("eventId",
			mcp.Description("Custom event ID: 5-1024 characters from a-v and 0-9"),
		),
		mcp.WithString("attendees",
			mcp.Description("Attendee email addresses (comma separated or array)"),
		),
		mcp.WithString("recurrence",
			mcp.Description("RRULE, EXRULE, RDATE or EXDATE lines (e.g. 'RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR'), array for several"),
		),
		mcp.WithString("eventType",
			mcp.Description("Event type: 'default', 'outOfOffice', 'focusTime', 'workingLocation'"),
		),
		mcp.WithObject("workingLocation",
			mcp.Description("Working location for workingLocation events: {type: homeOffice|officeLocation|customLocation, officeLabel, customLabel, buildingId, floorId, deskId}"),
		),
		mcp.WithObject("autoDecline",
			mcp.Description("Auto decline settings for outOfOffice and focusTime events: {autoDeclineMode, declineMessage, chatStatus}"),
		),
		mcp.WithObject("reminders",
			mcp.Description("Reminders: {useDefault, overrides: [{method: email|popup, minutes}]}"),
		),
		mcp.WithObject("privateProperties",
			mcp.Description("Private extended properties as string key/value pairs"),
		),
		mcp.WithString("transparency",
			mcp.Description("'opaque' (busy) or 'transparent' (free)"),
		),
		mcp.WithString("visibility",
			mcp.Description("'default', 'public', 'private' or 'confidential'"),
		),
		mcp.WithString("colorId",
			mcp.Description("Event color ID"),
		),
		mcp.WithBoolean("addGoogleMeet",
			mcp.Description("Add a Google Meet conference"),
		),
		mcp.WithString("sendUpdates",
			mcp.Description("Who gets notified: 'all', 'externalOnly' or 'none'"),
		),
		mcp.WithBoolean("guestsCanModify",
			mcp.Description("Allow guests to modify the event"),
		),
		mcp.WithBoolean("guestsCanInviteOthers",
			mcp.Description("Allow guests to invite others"),
		),
		mcp.WithBoolean("guestsCanSeeOtherGuests",
			mcp.Description("Allow guests to see other guests"),
		),
		mcp.WithBoolean("checkDuplicates",
			mcp.Description("Look for similar existing events (default: true)"),
		),
		mcp.WithBoolean("checkConflicts",
			mcp.Description("Look for overlapping events (default: true)"),
		),
		mcp.WithString("calendarsToCheck",
			mcp.Description("Additional calendar IDs to check for duplicates and conflicts"),
		),
		mcp.WithBoolean("allowDuplicates",
			mcp.Description("Create the event even when a near-identical event exists"),
		),
		mcp.WithNumber("duplicateThreshold",
			mcp.Description("Similarity from 0 to 1 at which events are reported as duplicates"),
		),
	)

	s.AddTool(createEventTool, common.InstrumentedToolHandler(
		"calendar_create_event", instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, sc)
		}))

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Update one or more events. Only the given fields change. For recurring events "+
			"the scope selects one occurrence, the whole series, or this and following occurrences."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("account",
			mcp.Description("Account name (default: the server's default account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: primary)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("ID of the event to update, or an array of IDs to apply the same change to each"),
		),
		mcp.WithString("summary",
			mcp.Description("New title"),
		),
		mcp.WithString("description",
			mcp.Description("New description (empty string clears it)"),
		),
		mcp.WithString("location",
			mcp.Description("New location (empty string clears it)"),
		),
		mcp.WithString("start",
			mcp.Description("New start. "+timeDescription),
		),
		mcp.WithString("end",
			mcp.Description("New end. "+timeDescription),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone for local timestamps (default: the calendar's time zone)"),
		),
		mcp.WithString("status",
			mcp.Description("'confirmed', 'tentative' or 'cancelled'"),
		),
		mcp.WithString("attendees",
			mcp.Description("Attendees to add; existing guests and their responses are kept"),
		),
		mcp.WithString("removeAttendees",
			mcp.Description("Attendee email addresses to remove"),
		),
		mcp.WithString("recurrence",
			mcp.Description("Replacement recurrence lines"),
		),
		mcp.WithObject("reminders",
			mcp.Description("Reminders: {useDefault, overrides: [{method, minutes}]}"),
		),
		mcp.WithString("transparency",
			mcp.Description("'opaque' or 'transparent'"),
		),
		mcp.WithString("visibility",
			mcp.Description("'default', 'public', 'private' or 'confidential'"),
		),
		mcp.WithString("colorId",
			mcp.Description("Event color ID"),
		),
		mcp.WithString("scope",
			mcp.Description("For recurring events: 'single', 'all' (default) or 'future'"),
		),
		mcp.WithString("originalStartTime",
			mcp.Description("Original start of the occurrence, required for scope 'single' when eventId is the series"),
		),
		mcp.WithString("futureStartDate",
			mcp.Description("First occurrence to change, required for scope 'future'"),
		),
		mcp.WithBoolean("checkConflicts",
			mcp.Description("Look for overlapping events when times change (default: true)"),
		),
		mcp.WithString("calendarsToCheck",
			mcp.Description("Additional calendar IDs to check for conflicts"),
		),
	)

	s.AddTool(updateEventTool, common.InstrumentedToolHandler(
		"calendar_update_event", instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateEvent(ctx, request, sc)
		}))

	commitTool := mcp.NewTool("calendar_commit_proposed_events",
		mcp.WithDescription("Create the events of a proposed schedule. Each proposal is created in order "+
			"with duplicate detection and tagged with its proposal and task IDs; proposals committed "+
			"before are skipped. Failures are reported per proposal."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("account",
			mcp.Description("Account name (default: the server's default account)"),
		),
		mcp.WithString("calendar",
			mcp.Description("Calendar name or ID (default: primary)"),
		),
		mcp.WithArray("proposedEvents",
			mcp.Required(),
			mcp.Description("Proposals: [{id, taskId, title, start, end, status, reasoning}]. Start and end "+
				"are timestamps; proposals with status 'committed' are skipped."),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithBoolean("allowDuplicates",
			mcp.Description("Create proposals even when they duplicate existing events"),
		),
	)

	s.AddTool(commitTool, common.InstrumentedToolHandler(
		"calendar_commit_proposed_events", instrumentation.OperationCommit, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCommitProposed(ctx, request, sc)
		}))

	return nil
}

func createRequest(args map[string]any) (operations.CreateRequest, error) {
	var req operations.CreateRequest
	var err error
	if req.Account, err = common.SingleValue(args, "account"); err != nil {
		return req, err
	}
	if req.Calendar, err = common.SingleValue(args, "calendar"); err != nil {
		return req, err
	}

	tz := stringArg(args, "timeZone")
	start, err := eventTimeArg(args, "start", tz)
	if err != nil {
		return req, err
	}
	end, err := eventTimeArg(args, "end", tz)
	if err != nil {
		return req, err
	}
	if start != nil {
		req.Start = *start
	}
	if end != nil {
		req.End = *end
	}

	req.EventID = stringArg(args, "eventId")
	req.Title = stringArg(args, "summary")
	req.Description = stringArg(args, "description")
	req.Location = stringArg(args, "location")
	req.EventType = stringArg(args, "eventType")
	req.Transparency = stringArg(args, "transparency")
	req.Visibility = stringArg(args, "visibility")
	req.ColorID = stringArg(args, "colorId")
	req.SendUpdates = stringArg(args, "sendUpdates")
	req.AddGoogleMeet = boolArg(args, "addGoogleMeet")
	req.AllowDuplicates = boolArg(args, "allowDuplicates")
	req.DuplicateThreshold = numberArg(args, "duplicateThreshold")
	req.GuestsCanModify = boolPtrArg(args, "guestsCanModify")
	req.GuestsCanInviteOthers = boolPtrArg(args, "guestsCanInviteOthers")
	req.GuestsCanSeeOtherGuests = boolPtrArg(args, "guestsCanSeeOtherGuests")
	req.CheckDuplicates = boolPtrArg(args, "checkDuplicates")
	req.CheckConflicts = boolPtrArg(args, "checkConflicts")

	if req.Attendees, err = attendeesArg(args, "attendees"); err != nil {
		return req, err
	}
	if req.Recurrence, err = batch.ParseOptionalStringOrArray(args["recurrence"], "recurrence"); err != nil {
		return req, err
	}
	if req.CalendarsToCheck, err = listArg(args, "calendarsToCheck"); err != nil {
		return req, err
	}

	var wl calendar.WorkingLocation
	if ok, err := decodeArg(args, "workingLocation", &wl); err != nil {
		return req, err
	} else if ok {
		req.WorkingLocation = &wl
	}
	var ad calendar.AutoDecline
	if ok, err := decodeArg(args, "autoDecline", &ad); err != nil {
		return req, err
	} else if ok {
		req.AutoDecline = &ad
	}
	var rem calendar.Reminders
	if ok, err := decodeArg(args, "reminders", &rem); err != nil {
		return req, err
	} else if ok {
		req.Reminders = &rem
	}
	if _, err := decodeArg(args, "privateProperties", &req.PrivateProperties); err != nil {
		return req, err
	}
	return req, nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	req, err := createRequest(request.GetArguments())
	if err != nil {
		return common.ErrorResult(err), nil
	}

	resp, err := sc.Operations().Create(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(resp)
}

// updateRequest reads every update field except the event ID.
func updateRequest(args map[string]any) (operations.UpdateRequest, error) {
	var req operations.UpdateRequest
	var err error
	if req.Account, err = common.SingleValue(args, "account"); err != nil {
		return req, err
	}
	if req.Calendar, err = common.SingleValue(args, "calendar"); err != nil {
		return req, err
	}

	tz := stringArg(args, "timeZone")
	if req.Start, err = eventTimeArg(args, "start", tz); err != nil {
		return req, err
	}
	if req.End, err = eventTimeArg(args, "end", tz); err != nil {
		return req, err
	}
	if req.OriginalStartTime, err = eventTimeArg(args, "originalStartTime", tz); err != nil {
		return req, err
	}
	if req.FutureStartDate, err = eventTimeArg(args, "futureStartDate", tz); err != nil {
		return req, err
	}
	if req.Scope, err = recurrence.ParseScope(stringArg(args, "scope")); err != nil {
		return req, &operations.ValidationError{Field: "scope", Message: err.Error(), Err: err}
	}

	req.Title = stringPtrArg(args, "summary")
	req.Description = stringPtrArg(args, "description")
	req.Location = stringPtrArg(args, "location")
	req.Transparency = stringPtrArg(args, "transparency")
	req.Visibility = stringPtrArg(args, "visibility")
	req.ColorID = stringPtrArg(args, "colorId")
	if status := stringArg(args, "status"); status != "" {
		st := calendar.Status(status)
		req.Status = &st
	}
	req.CheckConflicts = boolPtrArg(args, "checkConflicts")

	if req.Attendees, err = attendeesArg(args, "attendees"); err != nil {
		return req, err
	}
	if req.RemoveAttendees, err = listArg(args, "removeAttendees"); err != nil {
		return req, err
	}
	if req.Recurrence, err = batch.ParseOptionalStringOrArray(args["recurrence"], "recurrence"); err != nil {
		return req, err
	}
	if req.CalendarsToCheck, err = listArg(args, "calendarsToCheck"); err != nil {
		return req, err
	}
	var rem calendar.Reminders
	if ok, err := decodeArg(args, "reminders", &rem); err != nil {
		return req, err
	} else if ok {
		req.Reminders = &rem
	}
	return req, nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	eventIDs, err := batch.ParseStringOrArray(args["eventId"], "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req, err := updateRequest(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	if len(eventIDs) == 1 {
		req.EventID = eventIDs[0]
		resp, err := sc.Operations().Update(ctx, req)
		if err != nil {
			return common.ErrorResult(err), nil
		}
		return common.JSONResult(resp)
	}

	summary := batch.Process(ctx, eventIDs, func(ctx context.Context, id string) (any, error) {
		r := req
		r.EventID = id
		return sc.Operations().Update(ctx, r)
	})
	result, err := common.JSONResult(summary)
	if err == nil && summary.Successful == 0 {
		result.IsError = true
	}
	return result, err
}

func handleCommitProposed(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var req operations.CommitRequest
	var err error
	if req.Account, err = common.SingleValue(args, "account"); err != nil {
		return common.ErrorResult(err), nil
	}
	if req.Calendar, err = common.SingleValue(args, "calendar"); err != nil {
		return common.ErrorResult(err), nil
	}
	ok, err := decodeArg(args, "proposedEvents", &req.ProposedEvents)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	if !ok {
		return mcp.NewToolResultError("proposedEvents is required"), nil
	}
	req.AllowDuplicates = boolArg(args, "allowDuplicates")

	resp, err := sc.Operations().CommitProposed(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(resp)
}
