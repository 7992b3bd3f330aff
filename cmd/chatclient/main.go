// Command chatclient is a terminal client for the Liebefeld community: it
// lists and rates events, manages the local profile and joins group chats.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MaikZ91/liebefeld/config"
	"github.com/MaikZ91/liebefeld/internal/chat"
	"github.com/MaikZ91/liebefeld/internal/events"
	"github.com/MaikZ91/liebefeld/internal/http/remote"
	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/MaikZ91/liebefeld/internal/profile"
	"github.com/MaikZ91/liebefeld/internal/session"
	"github.com/MaikZ91/liebefeld/util/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg      *config.ClientConfig
	store    *session.SQLiteStore
	session  *session.Session
	client   *remote.Client
	profiles *profile.Resolver
	events   *events.Coordinator
	out      *log.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var city, avatar string

	root := &cobra.Command{
		Use:          "chatclient",
		Short:        "Terminal client for the Liebefeld community",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = log.New(cmd.OutOrStdout(), "", 0)
			return a.open(city)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&city, "city", "", "city scope for events (defaults to CITY)")

	profileCmd := &cobra.Command{
		Use:   "profile [name] [interests...]",
		Short: "Show or save the profile of this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.profile(cmd.Context(), args, avatar)
		},
	}
	profileCmd.Flags().StringVar(&avatar, "avatar", "", "image file uploaded as avatar")

	root.AddCommand(
		&cobra.Command{
			Use:   "events",
			Short: "List events, the top event of each day marked with *",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.listEvents(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "like <event-id>",
			Short: "Like an event",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.like(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:       "rsvp <event-id> <yes|no|maybe>",
			Short:     "Answer an event invitation",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{string(model.RSVPYes), string(model.RSVPNo), string(model.RSVPMaybe)},
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.rsvp(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "add <YYYY-MM-DD> <HH:MM> <title...>",
			Short: "Add a community event",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.add(cmd.Context(), args)
			},
		},
		profileCmd,
		&cobra.Command{
			Use:   "groups",
			Short: "List chat groups",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.groups(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "chat <group-id>",
			Short: "Join a group chat (/react n emoji, /reply n text, /reconnect, /who, /quit)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.chat(cmd.Context(), args[0])
			},
		},
	)
	return root
}

// open builds the session, the remote client and both coordinators.
func (a *app) open(city string) error {
	cfg := config.NewClient()
	if city != "" {
		cfg.City = city
	}

	store, err := session.OpenSQLite(cfg.SessionPath)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	sess := session.New(store)

	client, err := remote.NewClient(cfg.APIBaseURL, sess)
	if err != nil {
		store.Close()
		return err
	}

	bundled, err := events.BundledEvents(time.Now())
	if err != nil {
		store.Close()
		return err
	}

	a.cfg = cfg
	a.store = store
	a.session = sess
	a.client = client
	a.profiles = profile.NewResolver(client, sess)
	a.events = events.New(client, sess,
		events.WithCity(cfg.City),
		events.WithFeed(client),
		events.WithFallback(bundled),
	)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// load refreshes events and the profile concurrently. A missing profile is
// not fatal.
func (a *app) load(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		return a.events.RefreshEvents(ctx)
	})
	g.Go(func() error {
		if _, err := a.profiles.Refetch(ctx); err != nil {
			log.Println("[Profile]: unable to load profile:", err)
		}
		return nil
	})
	return g.Wait()
}

func (a *app) listEvents(ctx context.Context) error {
	if err := a.load(ctx); err != nil {
		log.Println("showing bundled events:", err)
	}

	top := a.events.TopEventForEachDay()
	now := time.Now()
	for _, e := range a.events.Events() {
		a.out.Println(formatEvent(e, top[e.Date] == e.ID, e.IsNew(now)))
	}
	return nil
}

func formatEvent(e model.Event, top, isNew bool) string {
	var b strings.Builder
	mark := " "
	if top {
		mark = "*"
	}
	fmt.Fprintf(&b, "%s %s %-5s %s", mark, e.Date, e.Time, e.Title)
	if e.Location != "" {
		fmt.Fprintf(&b, " @ %s", e.Location)
	}
	fmt.Fprintf(&b, "  [%d likes, %d/%d/%d]", e.Likes, e.RSVP.Yes, e.RSVP.Maybe, e.RSVP.No)
	if isNew {
		b.WriteString(" NEU")
	}
	fmt.Fprintf(&b, "  (%s)", e.ID)
	return b.String()
}

func (a *app) like(ctx context.Context, id string) error {
	if err := a.load(ctx); err != nil {
		log.Println("using bundled events:", err)
	}
	if err := a.events.LikeEvent(ctx, id); err != nil {
		return err
	}
	e, _ := a.events.Event(id)
	a.out.Printf("%s now has %d likes", e.Title, e.Likes)
	return nil
}

func (a *app) rsvp(ctx context.Context, id, answer string) error {
	option, err := model.ParseRSVPOption(answer)
	if err != nil {
		return err
	}
	if err := a.load(ctx); err != nil {
		log.Println("using bundled events:", err)
	}
	if err := a.events.RSVPEvent(ctx, id, option); err != nil {
		return err
	}
	e, _ := a.events.Event(id)
	a.out.Printf("%s: %d yes, %d maybe, %d no", e.Title, e.RSVP.Yes, e.RSVP.Maybe, e.RSVP.No)
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	created, err := a.events.AddUserEvent(ctx, model.Event{
		Date:  args[0],
		Time:  args[1],
		Title: strings.Join(args[2:], " "),
	})
	if err != nil {
		return err
	}
	if created.Source == model.SourceLocal {
		a.out.Printf("saved locally only as %s", created.ID)
		return nil
	}
	a.out.Printf("created %s", created.ID)
	return nil
}

func (a *app) profile(ctx context.Context, args []string, avatarFile string) error {
	if len(args) == 0 {
		p, err := a.profiles.Refetch(ctx)
		if err != nil {
			return err
		}
		if p == nil {
			a.out.Printf("%s (no profile)", a.profiles.Username())
			return nil
		}
		a.out.Printf("%s interests=%v locations=%v", p.Username, p.Interests, p.FavoriteLocations)
		return nil
	}

	p := model.UserProfile{
		Username:          args[0],
		Interests:         args[1:],
		FavoriteLocations: a.session.FavoriteLocations(),
	}
	if avatarFile != "" {
		url, err := a.uploadAvatar(ctx, avatarFile)
		if err != nil {
			return err
		}
		p.Avatar = &url
	} else if current := a.session.Avatar(); current != "" {
		p.Avatar = &current
	}

	saved, err := a.profiles.Save(ctx, p)
	if err != nil {
		return err
	}
	if err := a.session.SetOnboardingCompleted(true); err != nil {
		return err
	}
	a.out.Printf("saved profile %s", saved.Username)
	return nil
}

func (a *app) uploadAvatar(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return a.client.UploadImage(ctx, storage.FolderAvatars, filepath.Base(path), f)
}

func (a *app) groups(ctx context.Context) error {
	groups, err := a.client.ListGroups(ctx, a.session.ChatCategory())
	if err != nil {
		return err
	}
	for _, g := range groups {
		a.out.Printf("%-24s %-12s %s", g.ID, g.Category, g.Name)
	}
	return nil
}

func (a *app) chat(ctx context.Context, groupID string) error {
	if _, err := a.profiles.Refetch(ctx); err != nil {
		log.Println("[Profile]: unable to load profile:", err)
	}

	room := chat.New(groupID, a.client,
		chat.WebsocketDialer{BaseURL: a.cfg.RealtimeURL, Source: a.client.Source},
		a.session,
		chat.WithBackoff(chat.ExponentialBackoff{Initial: a.cfg.ReconnectInitial, Max: a.cfg.ReconnectMax}),
		chat.WithManualDelay(a.cfg.ManualReconnectDelay),
	)
	view := newChatView(a.out)
	room.OnChange(func() { view.render(room) })

	if err := room.Start(ctx); err != nil {
		log.Println("history unavailable:", err)
	}
	defer room.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.handleChatLine(ctx, room, line); quit {
				return nil
			}
		}
	}
}

func (a *app) handleChatLine(ctx context.Context, room *chat.Synchronizer, line string) bool {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)

	var err error
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/reconnect":
		room.Reconnect()
	case line == "/who":
		for _, p := range room.Presence() {
			state := ""
			if p.Typing {
				state = " (schreibt)"
			}
			a.out.Printf("  %s%s", p.Username, state)
		}
	case fields[0] == "/react" && len(fields) == 3:
		var msg model.ChatMessage
		if msg, err = messageAt(room, fields[1]); err == nil {
			err = room.React(ctx, msg.ID, fields[2])
		}
	case fields[0] == "/reply" && len(fields) >= 3:
		var msg model.ChatMessage
		if msg, err = messageAt(room, fields[1]); err == nil {
			_, err = room.Send(ctx, strings.Join(fields[2:], " "), &msg)
		}
	default:
		_, err = room.Send(ctx, line, nil)
	}
	if err != nil {
		a.out.Printf("! %v", err)
	}
	return false
}

// messageAt resolves the 1-based index shown in the chat view.
func messageAt(room *chat.Synchronizer, n string) (model.ChatMessage, error) {
	i, err := strconv.Atoi(n)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("not a message number: %s", n)
	}
	msgs := room.Messages()
	if i < 1 || i > len(msgs) {
		return model.ChatMessage{}, chat.ErrMessageNotFound
	}
	return msgs[i-1], nil
}

// chatView prints messages once and reports status changes.
type chatView struct {
	mu        sync.Mutex
	out       *log.Logger
	status    chat.Status
	printed   map[string]string
	presences string
}

func newChatView(out *log.Logger) *chatView {
	return &chatView{out: out, printed: make(map[string]string)}
}

func (v *chatView) render(s *chat.Synchronizer) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if status := s.Status(); status != v.status {
		v.status = status
		v.out.Printf("-- %s (attempt %d)", status, s.Attempts())
	}

	var names []string
	for _, p := range s.Presence() {
		names = append(names, p.Username)
	}
	if joined := strings.Join(names, ", "); joined != v.presences {
		v.presences = joined
		v.out.Printf("-- online: %s", joined)
	}

	for i, m := range s.Messages() {
		line := formatMessage(i+1, m)
		if v.printed[m.ID] == line {
			continue
		}
		v.printed[m.ID] = line
		v.out.Println(line)
	}
}

func formatMessage(n int, m model.ChatMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d %s %s: %s", n, m.CreatedAt.Local().Format("15:04"), m.Sender, m.Text)
	if m.ReplyToSender != nil {
		fmt.Fprintf(&b, "  (re %s)", *m.ReplyToSender)
	}
	for _, r := range m.Reactions {
		fmt.Fprintf(&b, " %s%d", r.Emoji, len(r.Users))
	}
	return b.String()
}
