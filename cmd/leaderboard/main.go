package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/layer-3/leaderboard"
	"github.com/layer-3/leaderboard/config"
	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "leaderboard",
		Usage: "talk to the leaderboard API as a player",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Usage: "API base URL", EnvVars: []string{"LEADERBOARD_BASE_URL"}},
			&cli.StringFlag{Name: "app-id", Usage: "application id", EnvVars: []string{"LEADERBOARD_APPLICATION_ID"}},
			&cli.StringFlag{Name: "api-secret", Usage: "API secret used to sign scores", EnvVars: []string{"LEADERBOARD_API_SECRET"}},
			&cli.StringFlag{Name: "access", Usage: "access token of a previous session", EnvVars: []string{"LEADERBOARD_ACCESS_TOKEN"}},
			&cli.StringFlag{Name: "refresh", Usage: "refresh token of a previous session", EnvVars: []string{"LEADERBOARD_REFRESH_TOKEN"}},
			&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout, overrides LEADERBOARD_HTTP_TIMEOUT"},
		},
		Commands: []*cli.Command{
			{
				Name:  "otp",
				Usage: "one-time password login",
				Subcommands: []*cli.Command{
					{
						Name:  "request",
						Usage: "email a one-time password",
						Flags: []cli.Flag{&cli.StringFlag{Name: "email", Required: true}},
						Action: func(c *cli.Context) error {
							return run(c, false, func(ctx context.Context, r *runner) error {
								r.bus.On(core.EventOTPSent, func(core.Event) { fmt.Println("one-time password sent") })
								return r.mgr.RequestOTP(ctx, c.String("email"))
							})
						},
					},
					{
						Name:  "verify",
						Usage: "exchange a one-time password for tokens",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "email", Required: true},
							&cli.StringFlag{Name: "code", Required: true},
						},
						Action: func(c *cli.Context) error {
							return run(c, false, func(ctx context.Context, r *runner) error {
								r.bus.OnOTPVerified(func() { printTokens(r.mgr.Session()) })
								return r.mgr.VerifyOTP(ctx, c.String("email"), c.String("code"))
							})
						},
					},
				},
			},
			{
				Name:  "refresh",
				Usage: "renew the access token",
				Action: func(c *cli.Context) error {
					return run(c, true, func(ctx context.Context, r *runner) error {
						r.bus.On(core.EventTokenRefreshed, func(core.Event) { printTokens(r.mgr.Session()) })
						return r.mgr.RefreshAccessToken(ctx)
					})
				},
			},
			{
				Name:  "submit",
				Usage: "post a signed score",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "score", Required: true},
					&cli.StringFlag{Name: "topic"},
				},
				Action: func(c *cli.Context) error {
					return run(c, true, func(ctx context.Context, r *runner) error {
						r.bus.OnScorePosted(func() { fmt.Println("score posted") })
						r.bus.On(core.EventTokenRefreshed, func(core.Event) {
							fmt.Println("access token was renewed, submit again with:")
							printTokens(r.mgr.Session())
						})
						return r.mgr.SubmitScore(ctx, c.Float64("score"), c.String("topic"), "")
					})
				},
			},
			{
				Name:  "server-submit",
				Usage: "post a score for a user with the API secret",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.Float64Flag{Name: "score", Required: true},
				},
				Action: func(c *cli.Context) error {
					return run(c, false, func(ctx context.Context, r *runner) error {
						r.bus.OnScorePosted(func() { fmt.Println("score posted") })
						return r.mgr.ServerSubmitScore(ctx, c.String("username"), c.Float64("score"))
					})
				},
			},
			{
				Name:  "top",
				Usage: "show the top scores",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic"},
					&cli.StringFlag{Name: "period", Usage: "daily, weekly, monthly or all_time"},
					&cli.StringFlag{Name: "order", Usage: "highest or lowest"},
					&cli.StringFlag{Name: "start", Usage: "RFC 3339 start time"},
					&cli.StringFlag{Name: "end", Usage: "RFC 3339 end time"},
					&cli.IntFlag{Name: "limit", Value: core.DefaultTopScoresLimit},
					&cli.BoolFlag{Name: "featured"},
					&cli.BoolFlag{Name: "all", Usage: "include every score of each user"},
				},
				Action: func(c *cli.Context) error {
					return run(c, false, func(ctx context.Context, r *runner) error {
						r.bus.OnTopScores(printScores)
						return r.mgr.GetTopScores(ctx, core.TopScoresQuery{
							Featured:              c.Bool("featured"),
							Topic:                 c.String("topic"),
							Period:                core.Period(c.String("period")),
							Order:                 core.Order(c.String("order")),
							StartTime:             c.String("start"),
							EndTime:               c.String("end"),
							IncludeAllUsersScores: c.Bool("all"),
							Limit:                 c.Int("limit"),
						})
					})
				},
			},
			{
				Name:  "user",
				Usage: "show the signed-in user",
				Action: func(c *cli.Context) error {
					return run(c, true, func(ctx context.Context, r *runner) error {
						r.bus.On(core.EventUserReceived, func(e core.Event) {
							fmt.Printf("%s (%s)\n", e.User.Username, e.User.Name)
						})
						return r.mgr.GetUser(ctx)
					})
				},
			},
			{
				Name:  "status",
				Usage: "show the session state",
				Action: func(c *cli.Context) error {
					return run(c, false, func(ctx context.Context, r *runner) error {
						fmt.Println("state:", r.mgr.State())
						if exp, err := r.mgr.AccessTokenExpiry(); err == nil {
							fmt.Printf("access token expires: %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
						}
						return nil
					})
				},
			},
		},
	}
}

type runner struct {
	mgr *service.SessionManager
	bus *leaderboard.EventBus

	mu      sync.Mutex
	failure error
}

// run builds a session manager from the flags, runs action and waits for
// every dispatched operation. The first failure event becomes the exit error.
func run(c *cli.Context, needSession bool, action func(context.Context, *runner) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(c, &cfg)

	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := c.Context
	bus, err := leaderboard.NewEventBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	mgr, err := leaderboard.NewClient(cfg, bus, logger)
	if err != nil {
		return err
	}

	r := &runner{mgr: mgr, bus: bus}
	bus.OnFailure(func(op string, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.failure == nil {
			r.failure = fmt.Errorf("%s: %w", op, err)
		}
	})

	if access, refresh := c.String("access"), c.String("refresh"); access != "" || refresh != "" {
		if err := mgr.Restore(access, refresh); err != nil {
			return err
		}
	} else if needSession {
		return errors.New("no session: pass --access and --refresh or run 'otp verify' first")
	}

	if err := action(ctx, r); err != nil {
		return err
	}
	mgr.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		logger.Debug("command failed", zap.Error(r.failure))
	}
	return r.failure
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v := c.String("app-id"); v != "" {
		cfg.ApplicationID = v
	}
	if v := c.String("api-secret"); v != "" {
		cfg.APISecret = v
	}
	if v := c.Duration("timeout"); v > 0 {
		cfg.HTTPTimeout = v
	}
}

func printTokens(s core.Session) {
	fmt.Printf("export LEADERBOARD_ACCESS_TOKEN=%s\n", s.AccessToken)
	fmt.Printf("export LEADERBOARD_REFRESH_TOKEN=%s\n", s.RefreshToken)
}

func printScores(scores core.TopScores) {
	for _, item := range scores.Items {
		topic := item.Topic
		if topic == "" {
			topic = "-"
		}
		fmt.Printf("%3d  %-20s %12s  %s\n", item.Rank, item.User.Username, core.FormatScore(item.Score), topic)
	}
	fmt.Printf("%d entries\n", scores.Count)
}
