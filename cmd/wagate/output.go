package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/wagate/internal/client"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// emit prints v as JSON when --json is set and otherwise calls text.
func emit(v any, text func(w io.Writer)) error {
	if jsonOutput {
		return printJSON(os.Stdout, v)
	}
	text(os.Stdout)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func printSessionInfo(w io.Writer, info *model.SessionInfo) {
	fmt.Fprintf(w, "Tenant:   %s\n", info.TenantID)
	fmt.Fprintf(w, "State:    %s\n", ui.RenderEvent(string(info.State)))
	if info.ID != "" {
		fmt.Fprintf(w, "Session:  %s\n", info.ID)
	}
	fmt.Fprintf(w, "Ready:    %t\n", info.Ready)
	if info.HasQR {
		fmt.Fprintf(w, "Pairing:  %s\n", ui.RenderAccent("QR pending"))
	}
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:  %s\n", formatTime(info.CreatedAt))
	}
	if !info.ReadyAt.IsZero() {
		fmt.Fprintf(w, "Ready At: %s\n", formatTime(info.ReadyAt))
	}
}

func printProfile(w io.Writer, p *model.Profile) {
	fmt.Fprintf(w, "Number:   %s\n", p.UserNumber)
	fmt.Fprintf(w, "Name:     %s\n", p.UserName)
	fmt.Fprintf(w, "About:    %s\n", p.UserAbout)
	fmt.Fprintf(w, "Business: %t\n", p.IsBusiness)
	if p.ProfilePicURL != "" {
		fmt.Fprintf(w, "Picture:  %s\n", ui.RenderMuted(p.ProfilePicURL))
	}
}

func printSessions(w io.Writer, resp *client.SessionsResponse) {
	if len(resp.Sessions) == 0 && len(resp.Inactive) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSTATE\tQR\tLAST EVENT\tLAST SEEN")
	for _, s := range resp.Sessions {
		lastEvent, lastSeen := "-", "-"
		if s.Activity != nil {
			lastEvent = s.Activity.LastEvent
			lastSeen = formatTime(s.Activity.LastSeen)
		}
		qr := ""
		if s.HasQR {
			qr = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.TenantID, ui.RenderEvent(string(s.State)), qr, lastEvent, lastSeen)
	}
	for _, a := range resp.Inactive {
		fmt.Fprintf(tw, "%s\t%s\t\t%s\t%s\n", a.TenantID, ui.RenderMuted("inactive"), a.LastEvent, formatTime(a.LastSeen))
	}
	tw.Flush()
}

func printHistory(w io.Writer, events []*model.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tEVENT\tDATA")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, formatTime(e.CreatedAt), ui.RenderEvent(e.Name), compactData(e.Payload))
	}
	tw.Flush()
}

func printStreamEvent(w io.Writer, evt client.StreamEvent) {
	fmt.Fprintf(w, "%s %s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), ui.RenderEvent(evt.Name), compactData(evt.Data))
}

// compactData renders an event payload on one line, eliding the empty object.
func compactData(data json.RawMessage) string {
	if len(data) == 0 || string(data) == "{}" || string(data) == "null" {
		return ""
	}
	return string(data)
}
