package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"snaplink/internal/domain"
	"snaplink/internal/expiry"
	"snaplink/internal/resolver"
)

const (
	cmdStart   = "/start"
	cmdHelp    = "/help"
	cmdShorten = "/shorten"
	cmdMyLinks = "/mylinks"
	cmdStats   = "/stats"
	cmdDelete  = "/delete"
	cmdTest    = "/test"
)

const helpText = `SnapLink shortens links that expire.

/shorten <url> [code|-] [minutes] - create a short link
/mylinks - list your links, newest first
/stats <code> - clicks for one of your links
/test <code> - record a simulated click
/delete <code> - delete one of your links`

// ownerFor maps a Telegram user to an opaque owner identity.
func ownerFor(userID int64) domain.Owner {
	return domain.Owner("tg:" + strconv.FormatInt(userID, 10))
}

// splitCommand returns the command without any @botname suffix and its arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

type shortenArgs struct {
	url     string
	code    string
	minutes int
}

func parseShorten(args []string) (shortenArgs, error) {
	if len(args) == 0 || len(args) > 3 {
		return shortenArgs{}, errors.New("usage: /shorten <url> [code|-] [minutes]")
	}
	out := shortenArgs{url: args[0]}
	if len(args) > 1 && args[1] != "-" {
		out.code = args[1]
	}
	if len(args) > 2 {
		m, err := strconv.Atoi(args[2])
		if err != nil {
			return shortenArgs{}, fmt.Errorf("minutes must be a whole number, got %q", args[2])
		}
		// 0 would silently become the default window; reject it like any other non-positive value.
		if m <= 0 {
			return shortenArgs{}, &domain.InvalidDurationError{Minutes: m}
		}
		out.minutes = m
	}
	return out, nil
}

// handleCommand executes one command for userID and returns the reply text.
func (h *Handler) handleCommand(ctx context.Context, userID int64, text string) string {
	cmd, args := splitCommand(text)
	owner := ownerFor(userID)

	switch cmd {
	case cmdStart:
		return "Welcome to SnapLink! Send /shorten <url> to get a short link.\n\n" + helpText
	case cmdHelp:
		return helpText
	case cmdShorten:
		return h.shorten(ctx, owner, args)
	case cmdMyLinks:
		return h.myLinks(ctx, owner)
	case cmdStats:
		return h.withOwnedCode(ctx, owner, args, h.stats)
	case cmdTest:
		return h.withOwnedCode(ctx, owner, args, h.simulate)
	case cmdDelete:
		return h.withOwnedCode(ctx, owner, args, h.delete)
	default:
		return "Unknown command.\n\n" + helpText
	}
}

func (h *Handler) shorten(ctx context.Context, owner domain.Owner, args []string) string {
	in, err := parseShorten(args)
	if err != nil {
		return err.Error()
	}

	rec, err := h.svc.CreateLink(ctx, in.url, in.code, in.minutes, owner)
	if err != nil {
		h.log.WithError(err).WithField("owner", owner).Info("Link creation rejected")
		return "Could not create link: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n→ %s\nexpires %s", h.cfg.ShortURL(rec.Code), rec.Destination, rec.ExpiresAt.UTC().Format(time.RFC1123))
	if h.previewer != nil {
		p, err := h.previewer.Preview(ctx, rec.Destination)
		switch {
		case err != nil:
			h.log.WithError(err).WithField("url", rec.Destination).Warn("Destination preview failed")
		case p.Title != "":
			fmt.Fprintf(&b, "\n\n%s", p.Title)
			if p.Description != "" {
				fmt.Fprintf(&b, "\n%s", p.Description)
			}
		}
	}
	return b.String()
}

func (h *Handler) myLinks(ctx context.Context, owner domain.Owner) string {
	links, err := h.svc.ListLinks(ctx, owner)
	if err != nil {
		h.log.WithError(err).Error("Failed to list links")
		return "Could not load your links, try again later."
	}
	if len(links) == 0 {
		return "You have no links yet."
	}

	now := h.now()
	var b strings.Builder
	for i, l := range links {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s → %s (%s, %d clicks)", h.cfg.ShortURL(l.Code), l.Destination, expiry.Classify(l, now), len(l.Clicks))
	}
	return b.String()
}

// withOwnedCode checks that the single argument names a link owned by owner
// before running fn. Ownership is a front-end rule; the core does no authorization.
func (h *Handler) withOwnedCode(ctx context.Context, owner domain.Owner, args []string, fn func(context.Context, string) string) string {
	if len(args) != 1 {
		return "Please give exactly one short code."
	}
	code := args[0]
	rec, err := h.svc.GetLinkDetail(ctx, code)
	if err != nil && !domain.IsNotFound(err) {
		h.log.WithError(err).WithField("code", code).Error("Failed to load link")
		return "Could not load that link, try again later."
	}
	if err != nil || rec.Owner != owner {
		return fmt.Sprintf("You have no link %q.", code)
	}
	return fn(ctx, code)
}

func (h *Handler) stats(ctx context.Context, code string) string {
	st, err := h.svc.LinkStats(ctx, code, h.now())
	if err != nil {
		return "Could not load stats: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s → %s\n%s, %d clicks", h.cfg.ShortURL(st.Code), st.Destination, st.State, st.TotalClicks)
	sources := make([]string, 0, len(st.BySource))
	for s := range st.BySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(&b, "\n  %s: %d", s, st.BySource[s])
	}
	if st.LastClick != nil {
		fmt.Fprintf(&b, "\nlast click %s", st.LastClick.UTC().Format(time.RFC1123))
	}
	return b.String()
}

func (h *Handler) simulate(ctx context.Context, code string) string {
	out, err := h.svc.SimulateClick(ctx, code, h.now())
	if err != nil {
		return "Could not record click: " + err.Error()
	}
	switch out.Kind {
	case resolver.Redirect:
		return "Click recorded, redirecting to " + out.Destination
	case resolver.Expired:
		return "That link has expired; no click recorded."
	default:
		return fmt.Sprintf("You have no link %q.", code)
	}
}

func (h *Handler) delete(ctx context.Context, code string) string {
	if err := h.svc.DeleteLink(ctx, code); err != nil {
		return "Could not delete link: " + err.Error()
	}
	return fmt.Sprintf("Deleted %s.", code)
}
