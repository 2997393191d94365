// Package calendar is the Google Calendar access layer of calmux.
//
// It defines the domain types shared by the rest of the module (Event,
// EventTime, CalendarInfo, EventQuery, EventPatch), the narrow interfaces the
// calendar core depends on (CalendarLister, EventLister, BatchEventLister,
// EventMutator) and Client, their implementation on top of the Google
// Calendar v3 API for one authenticated account.
//
// Client.BatchListEvents lists many calendars of one account through the
// Google batch endpoint, which the generated API client does not expose.
//
// Example usage:
//
//	client, err := calendar.NewClientForAccountWithProvider(ctx, "work", google.NewFileTokenProvider(""))
//	if err != nil {
//		return err
//	}
//	events, err := client.ListEvents(ctx, "primary", calendar.EventQuery{
//		TimeMin:         time.Now(),
//		TimeMax:         time.Now().AddDate(0, 0, 7),
//		ExpandRecurring: true,
//	})
package calendar
