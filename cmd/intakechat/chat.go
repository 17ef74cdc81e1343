package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/ent0n29/intakedesk/internal/app"
	"github.com/ent0n29/intakedesk/internal/config"
	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/transcript"
	"github.com/ent0n29/intakedesk/internal/transport"
)

func cmdChat() *cli.Command {
	var (
		backendMode    string
		backendURL     string
		backendTimeout time.Duration
		locale         string
		fields         = map[string]*string{}
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "backend-mode",
			Usage:       "Backend client [auto|http|mock]",
			Value:       "auto",
			Sources:     cli.EnvVars("INTAKE_BACKEND_MODE"),
			Destination: &backendMode,
		},
		&cli.StringFlag{
			Name:        "backend-url",
			Aliases:     []string{"u"},
			Usage:       "Base URL of the conversational backend",
			Sources:     cli.EnvVars("INTAKE_BACKEND_URL"),
			Destination: &backendURL,
		},
		&cli.DurationFlag{
			Name:        "backend-timeout",
			Usage:       "Per-request timeout, 0 for none",
			Sources:     cli.EnvVars("INTAKE_BACKEND_TIMEOUT"),
			Destination: &backendTimeout,
		},
		&cli.StringFlag{
			Name:        "locale",
			Usage:       "Clock style for message times, e.g. en-US or en-GB",
			Value:       "en-US",
			Sources:     cli.EnvVars("INTAKE_TIME_LOCALE"),
			Destination: &locale,
		},
	}
	defaults := intake.Defaults()
	defaultValues := map[string]string{
		intake.FieldProviderName:     defaults.ProviderName,
		intake.FieldConsultationType: defaults.ConsultationType,
		intake.FieldSpecialty:        defaults.Specialty,
		intake.FieldAgeGroup:         defaults.AgeGroup,
		intake.FieldGender:           defaults.Gender,
		intake.FieldClinicName:       defaults.ClinicName,
	}
	for _, field := range intake.Fields() {
		dst := new(string)
		fields[field] = dst
		flags = append(flags, &cli.StringFlag{
			Name:        strings.ReplaceAll(field, "_", "-"),
			Category:    "intake",
			Usage:       "Intake " + strings.ReplaceAll(field, "_", " "),
			Value:       defaultValues[field],
			Destination: dst,
		})
	}

	return &cli.Command{
		Name:    "chat",
		Aliases: []string{"c"},
		Usage:   "Fill in the intake and chat with the assistant from the terminal",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			client, err := app.NewTransport(config.Config{
				BackendMode:    backendMode,
				BackendURL:     strings.TrimSpace(backendURL),
				BackendTimeout: backendTimeout,
			}, nil)
			if err != nil {
				return err
			}

			form := intake.NewForm()
			for _, field := range intake.Fields() {
				if err := form.Set(field, *fields[field]); err != nil {
					return err
				}
			}

			runCtx, cancel := signalContext(ctx)
			defer cancel()
			repl := newChatREPL(os.Stdin, os.Stdout, client, form, transcript.Options{Locale: locale})
			return repl.run(runCtx)
		},
	}
}

// consoleSink prints notifications in color.
type consoleSink struct {
	out io.Writer
}

func (s consoleSink) Notify(severity notify.Severity, text string) {
	c := color.New(color.FgGreen, color.Bold)
	if severity == notify.SeverityError {
		c = color.New(color.FgRed, color.Bold)
	}
	_, _ = c.Fprintf(s.out, "* %s\n", text)
}

type chatREPL struct {
	in     io.Reader
	out    io.Writer
	form   *intake.Form
	sess   *conversation.Session
	input  *conversation.TextBuffer
	render transcript.Options
	shown  int
}

func newChatREPL(in io.Reader, out io.Writer, client transport.Client, form *intake.Form, render transcript.Options) *chatREPL {
	input := &conversation.TextBuffer{}
	return &chatREPL{
		in:     in,
		out:    out,
		form:   form,
		input:  input,
		render: render,
		sess: conversation.New(client, conversation.Options{
			Notifier: consoleSink{out: out},
			Input:    input,
		}),
	}
}

func (r *chatREPL) run(ctx context.Context) error {
	defer r.sess.Close()

	r.start(ctx)
	fmt.Fprintln(r.out, "Commands: /retry to start again, /transcript to show everything, /quit to leave.")

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/retry":
			r.start(ctx)
			continue
		case "/transcript":
			if err := transcript.WriteText(r.out, transcript.Render(r.sess.Snapshot(), r.render)); err != nil {
				return err
			}
			continue
		}

		r.input.SetValue(line)
		if !r.sess.Send(ctx, r.input.Value()).Accepted() {
			if strings.TrimSpace(line) != "" && r.sess.Status() != conversation.StatusActive {
				fmt.Fprintln(r.out, "The conversation is not active. Use /retry to start it.")
			}
			continue
		}
		if err := r.flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (r *chatREPL) start(ctx context.Context) {
	params, err := r.form.Submit(r.sess.Status() == conversation.StatusStarting)
	if err != nil {
		fmt.Fprintf(r.out, "Cannot start: %v\n", err)
		return
	}
	res := r.sess.Start(ctx, params)
	if res.Skipped {
		return
	}
	if res.Started {
		v := transcript.Render(r.sess.Snapshot(), r.render)
		fmt.Fprintf(r.out, "%s\n%s  %s\n", v.Header.Title, v.Header.Subtitle, v.Header.Thread)
	}
	_ = r.flush()
}

// flush prints the bubbles appended since the last call.
func (r *chatREPL) flush() error {
	v := transcript.Render(r.sess.Snapshot(), r.render)
	for _, b := range v.Bubbles[r.shown:] {
		if b.Origin == string(conversation.OriginUser) {
			continue
		}
		if err := transcript.WriteBubble(r.out, b); err != nil {
			return err
		}
	}
	r.shown = len(v.Bubbles)
	return nil
}
