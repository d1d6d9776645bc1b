package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/logging"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/mqtt"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/store"
)

const (
	defaultPublishWait = 10 * time.Second
	statusPollInterval = 50 * time.Millisecond
)

var errNoStore = errors.New("no layout store configured (store.type is none)")

// publish connects to the broker the layout file names, unless --host or
// --port say otherwise, sends one message and disconnects.
func (e *env) publish(c *cli.Context) error {
	host, port := e.config.MQTT.Host, e.config.MQTT.Port
	if saved, err := layout.Load(layoutPath(e.config)); err == nil {
		host, port = saved.Host, saved.Port
	}
	if e.target.Host != "" {
		host = e.target.Host
	}
	if e.target.Port != 0 {
		port = e.target.Port
	}

	client := mqtt.NewClient(mqtt.Params{
		ClientID:       e.config.MQTT.ClientID,
		Username:       e.config.MQTT.Username,
		Password:       e.config.MQTT.Password,
		ConnectTimeout: e.config.MQTT.ConnectTimeout,
		PublishTimeout: e.config.MQTT.PublishTimeout,
		Logger:         logging.Module(e.logger, "mqtt"),
	})
	sess := session.New(client, nil, nil, session.Options{Host: host, Port: port}, logging.Module(e.logger, "session"))

	ctx, cancel := context.WithTimeout(c.Context, c.Duration(FlagWait.Name))
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if err := sess.Connect(ctx, "", 0); err != nil {
		return err
	}
	if err := waitConnected(ctx, sess); err != nil {
		return err
	}

	topic := c.String(FlagTopic.Name)
	if err := sess.Publish(ctx, topic, []byte(c.String(FlagPayload.Name))); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	e.logger.Info().Str("topic", topic).Str("broker", fmt.Sprintf("%s:%d", host, port)).Msg("Published message")
	return nil
}

func waitConnected(ctx context.Context, sess *session.Session) error {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		status := sess.Status()
		if status.State == session.StateConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			if status.LastError != "" {
				return fmt.Errorf("could not connect to %s:%d: %s", status.Host, status.Port, status.LastError)
			}
			return fmt.Errorf("could not connect to %s:%d: %w", status.Host, status.Port, ctx.Err())
		case <-ticker.C:
		}
	}
}

func layoutsCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "layouts",
		Usage: "manage named layouts in the layout store",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list stored layouts",
				Action: e.withStore(listLayouts),
			},
			{
				Name:      "save",
				Usage:     "store the layout file under a name",
				ArgsUsage: "<name>",
				Action:    e.withStore(e.saveNamedLayout),
			},
			{
				Name:      "load",
				Usage:     "write a stored layout to the layout file",
				ArgsUsage: "<name>",
				Action:    e.withStore(e.loadNamedLayout),
			},
			{
				Name:      "delete",
				Usage:     "remove a stored layout",
				ArgsUsage: "<name>",
				Action:    e.withStore(deleteNamedLayout),
			},
		},
	}
}

type storeAction func(c *cli.Context, manager *store.Manager) error

func (e *env) withStore(action storeAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		if e.config.Store.Type == "none" {
			return errNoStore
		}
		manager, err := store.NewManager(e.config.Store, logging.Module(e.logger, "store"))
		if err != nil {
			return err
		}
		defer manager.Close()
		return action(c, manager)
	}
}

func layoutName(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one layout name, got %d arguments", c.NArg())
	}
	return c.Args().First(), nil
}

func listLayouts(c *cli.Context, manager *store.Manager) error {
	layouts, err := manager.ListLayouts(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBROKER\tSUBSCRIPTIONS\tUPDATED")
	for _, info := range layouts {
		fmt.Fprintf(w, "%s\t%s:%d\t%d\t%s\n", info.Name, info.Host, info.Port, info.Subscriptions, humanize.Time(info.UpdatedAt))
	}
	return w.Flush()
}

func (e *env) saveNamedLayout(c *cli.Context, manager *store.Manager) error {
	name, err := layoutName(c)
	if err != nil {
		return err
	}

	path := layoutPath(e.config)
	cfg, err := layout.Load(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := manager.SaveLayout(c.Context, name, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "saved %s (%d subscriptions)\n", name, len(cfg.Subscriptions))
	return nil
}

func (e *env) loadNamedLayout(c *cli.Context, manager *store.Manager) error {
	name, err := layoutName(c)
	if err != nil {
		return err
	}

	cfg, err := manager.LoadLayout(c.Context, name)
	if err != nil {
		return err
	}
	path := layoutPath(e.config)
	if err := layout.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s to %s\n", name, path)
	return nil
}

func deleteNamedLayout(c *cli.Context, manager *store.Manager) error {
	name, err := layoutName(c)
	if err != nil {
		return err
	}
	if err := manager.DeleteLayout(c.Context, name); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %s\n", name)
	return nil
}
