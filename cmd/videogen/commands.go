package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"videoclient/internal/domain"
	"videoclient/internal/notice"
	"videoclient/internal/poller"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", c.stderr)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("VIDEOGEN_PASSWORD"), "password (defaults to VIDEOGEN_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := c.client.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	if !env.OK() {
		return errors.New(c.notices.Sprintf(notice.LoginFailed, env.Message))
	}
	fmt.Fprintln(c.stdout, c.notices.Sprintf(notice.LoggedIn, env.Data.Profile.DisplayName()))
	return nil
}

func (c *cli) logout(ctx context.Context, _ []string) error {
	if err := c.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, c.notices.Sprintf(notice.LoggedOut))
	return nil
}

func (c *cli) whoami(ctx context.Context, _ []string) error {
	if _, err := c.client.RequireSession(ctx); err != nil {
		return err
	}
	env, err := c.client.UserInfo(ctx)
	if err != nil {
		return err
	}
	if !env.OK() {
		return fmt.Errorf("user info: %s (code %d)", env.Message, env.Code)
	}
	p := env.Data
	fmt.Fprintf(c.stdout, "id:       %d\nusername: %s\nnickname: %s\nroles:    %s\n",
		p.UserID, p.Username, p.DisplayName(), strings.Join(p.Roles, ","))
	return nil
}

func (c *cli) points(ctx context.Context, _ []string) error {
	if _, err := c.client.RequireSession(ctx); err != nil {
		return err
	}
	env, err := c.client.PointsAndMembership(ctx)
	if err != nil {
		return err
	}
	if !env.OK() {
		return fmt.Errorf("points: %s (code %d)", env.Message, env.Code)
	}
	fmt.Fprintf(c.stdout, "points:     %d\nmembership: %s\n", env.Data.Points, env.Data.Level.Name())
	return nil
}

func (c *cli) generate(ctx context.Context, args []string) error {
	fs := newFlagSet("generate", c.stderr)
	prompt := fs.String("prompt", "", "video description")
	model := fs.String("model", domain.DefaultModel, "generation model")
	aspect := fs.String("aspect", domain.DefaultAspectRatio, "aspect ratio")
	duration := fs.Int("duration", domain.DefaultDuration, "duration in seconds")
	image := fs.String("image", "", "reference image file or URL")
	noWait := fs.Bool("no-wait", false, "print the job id and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.client.RequireSession(ctx); err != nil {
		return err
	}

	imageURL, err := imageReference(*image)
	if err != nil {
		return err
	}
	env, err := c.client.CreateVideo(ctx, domain.GenerateRequest{
		Model:       *model,
		Prompt:      *prompt,
		AspectRatio: *aspect,
		Duration:    *duration,
		ImageURL:    imageURL,
	})
	if err != nil {
		return err
	}
	if !env.OK() || env.Data.ID == "" {
		return errors.New(c.notices.Sprintf(notice.TaskCreateFailed, env.Message))
	}
	fmt.Fprintln(c.stdout, c.notices.Sprintf(notice.TaskCreated, env.Data.ID))
	if *noWait {
		return nil
	}
	return c.follow(ctx, env.Data.ID)
}

func (c *cli) status(ctx context.Context, args []string) error {
	fs := newFlagSet("status", c.stderr)
	watch := fs.Bool("watch", false, "poll until the job ends")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		return errors.New("status: job id is required")
	}
	if _, err := c.client.RequireSession(ctx); err != nil {
		return err
	}
	if *watch {
		return c.follow(ctx, id)
	}

	env, err := c.client.VideoResult(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case env.Code == domain.CodeJobNotFound:
		return domain.ErrJobNotFound
	case !env.OK():
		return fmt.Errorf("status: %s (code %d)", env.Message, env.Code)
	}
	c.printJob(env.Data)
	return nil
}

// follow polls id until the job ends and prints the outcome.
func (c *cli) follow(ctx context.Context, id string) error {
	p, err := poller.New(poller.Options{
		Fetcher:  c.client,
		Interval: c.cfg.PollInterval,
		Logger:   &c.logger,
		OnChange: func(s poller.Snapshot) {
			if s.Phase == poller.PhasePolling && s.Job != nil {
				fmt.Fprintln(c.stdout, c.notices.Sprintf(notice.Progress, s.Job.Status, s.Job.Progress))
			}
		},
	})
	if err != nil {
		return err
	}
	if err := p.Start(ctx, id); err != nil {
		return err
	}
	defer p.Stop()

	snap, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	switch snap.Phase {
	case poller.PhaseSucceeded:
		fmt.Fprintln(c.stdout, c.notices.Sprintf(notice.GenerationSucceeded))
		c.printJob(*snap.Job)
		return nil
	case poller.PhaseFailed:
		if snap.Job != nil && errors.Is(snap.Err, domain.ErrJobFailed) {
			return errors.New(c.notices.Sprintf(notice.GenerationFailed, snap.Job.Error))
		}
		if errors.Is(snap.Err, domain.ErrEmptyResult) {
			return errors.New(c.notices.Sprintf(notice.GenerationFailed, snap.Err.Error()))
		}
		return snap.Err
	case poller.PhaseNotFound:
		return snap.Err
	default:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("polling ended in phase %s", snap.Phase)
	}
}

func (c *cli) printJob(job domain.Job) {
	fmt.Fprintf(c.stdout, "job:      %s\nstatus:   %s\nprogress: %d%%\n", job.ID, job.Status, job.Progress)
	if job.Error != "" {
		fmt.Fprintf(c.stdout, "error:    %s\n", job.Error)
	}
	for _, r := range job.Results {
		fmt.Fprintf(c.stdout, "video:    %s\n", r.URL)
	}
}

// imageReference returns ref unchanged when it is already a URL and
// otherwise inlines the file as a data URL.
func imageReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	for _, prefix := range []string{"http://", "https://", "data:"} {
		if strings.HasPrefix(ref, prefix) {
			return ref, nil
		}
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("read image: %s is %s, not an image", ref, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
