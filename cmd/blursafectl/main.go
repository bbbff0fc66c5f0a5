// blursafectl: control client for blursafed
// Queries status, restarts detection, and tails the live event stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-blursafe/internal/config"
	"github.com/teslashibe/go-blursafe/internal/httpc"
	"github.com/teslashibe/go-blursafe/pkg/page"
	"github.com/teslashibe/go-blursafe/pkg/web"
)

const usage = `Usage: blursafectl [-url URL] <command> [args]

Commands:
  status                 Service counters
  pages                  Connected pages and their sessions
  refresh [page-id]      Restart detection on one page, or all pages
  preview <page> <video> Save the latest frame with its overlay (-o file)
  events                 Tail session events
`

func main() {
	server := flag.String("url", config.ServerURL(), "blursafed base URL")
	out := flag.String("o", "preview.jpg", "Output file for preview")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &client{base: strings.TrimRight(*server, "/"), out: os.Stdout}
	args := flag.Args()

	var err error
	switch args[0] {
	case "status":
		err = withTimeout(ctx, *timeout, c.status)
	case "pages":
		err = withTimeout(ctx, *timeout, c.pages)
	case "refresh":
		id := ""
		if len(args) > 1 {
			id = args[1]
		}
		err = withTimeout(ctx, *timeout, func(ctx context.Context) error { return c.refresh(ctx, id) })
	case "preview":
		if len(args) < 3 {
			flag.Usage()
			os.Exit(2)
		}
		err = withTimeout(ctx, *timeout, func(ctx context.Context) error {
			return c.preview(ctx, args[1], args[2], *out)
		})
	case "events":
		err = c.events(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

type client struct {
	base string
	out  io.Writer
}

func (c *client) status(ctx context.Context) error {
	var ov web.Overview
	if err := httpc.GetJSON(ctx, c.base+"/api/status", &ov); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "version   %s\n", ov.Version)
	fmt.Fprintf(c.out, "uptime    %s\n", ov.Uptime)
	fmt.Fprintf(c.out, "pages     %d\n", ov.Pages)
	fmt.Fprintf(c.out, "sessions  %d\n", ov.Sessions)
	fmt.Fprintf(c.out, "dashboards %d\n", ov.Dashboards)
	for _, kind := range []string{"requested", "result", "error", "skip", "timeout", "stale"} {
		fmt.Fprintf(c.out, "%-9s %d\n", kind, ov.Events[kind])
	}
	return nil
}

func (c *client) pages(ctx context.Context) error {
	var pages []page.Status
	if err := httpc.GetJSON(ctx, c.base+"/api/pages", &pages); err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Fprintln(c.out, "no pages connected")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tVIDEO\tSTATE\tTOKEN\tSTABLE\tREQUESTS\tERRORS\tURL")
	for _, p := range pages {
		if len(p.Sessions) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t%s\n", p.ID, p.URL)
			continue
		}
		for _, s := range p.Sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				p.ID, s.VideoID, s.State, s.Token, s.Stable, s.Stats.Requests, s.Stats.Errors, p.URL)
		}
	}
	return tw.Flush()
}

func (c *client) refresh(ctx context.Context, id string) error {
	endpoint := c.base + "/api/refresh"
	if id != "" {
		endpoint = c.base + "/api/pages/" + url.PathEscape(id) + "/refresh"
	}
	var resp struct {
		Refreshed []string `json:"refreshed"`
	}
	if err := httpc.PostJSON(ctx, endpoint, nil, &resp); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "refreshed %d page(s): %s\n", len(resp.Refreshed), strings.Join(resp.Refreshed, ", "))
	return nil
}

func (c *client) preview(ctx context.Context, pageID, videoID, file string) error {
	endpoint := fmt.Sprintf("%s/api/pages/%s/videos/%s/preview", c.base, url.PathEscape(pageID), url.PathEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpc.StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %s (%d bytes)\n", file, len(data))
	return nil
}

// eventsURL maps the HTTP base onto the dashboard's WebSocket endpoint.
func eventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/events"
	return u.String(), nil
}

func (c *client) events(ctx context.Context) error {
	endpoint, err := eventsURL(c.base)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var msg web.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.printEvent(msg)
	}
}

func (c *client) printEvent(msg web.StreamMessage) {
	ts := msg.At.Local().Format("15:04:05.000")
	switch {
	case msg.Type == "status":
		sessions := 0
		for _, p := range msg.Pages {
			sessions += len(p.Sessions)
		}
		fmt.Fprintf(c.out, "%s status  pages=%d sessions=%d\n", ts, len(msg.Pages), sessions)
	case msg.Event != nil:
		e := msg.Event
		line := fmt.Sprintf("%s %-8s page=%s video=%s", ts, e.Kind, e.PageID, e.VideoID)
		if e.Token > 0 {
			line += fmt.Sprintf(" token=%d", e.Token)
		}
		if e.Faces > 0 || e.Stable > 0 {
			line += fmt.Sprintf(" faces=%d stable=%d", e.Faces, e.Stable)
		}
		if e.Detail != "" {
			line += " " + e.Detail
		}
		fmt.Fprintln(c.out, line)
	}
}
