package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/config"
	"tuleapsync/internal/connector"
	"tuleapsync/internal/db"
	"tuleapsync/internal/engine"
	"tuleapsync/internal/migrate"
	"tuleapsync/internal/rest"
)

type Options struct {
	Workspace string
	// Config overrides the workspace tuleap.yml when set.
	Config   *config.Config
	Password string
	Logger   *log.Logger
}

// Context is everything a command needs to talk to one repository.
type Context struct {
	Config    *config.Config
	Codec     *codec.Registry
	Client    *rest.Client
	Connector *connector.Connector
	DB        *sql.DB
	Engine    engine.Engine
}

// NewClient builds the REST client for cfg. Without a username requests go
// out anonymously.
func NewClient(cfg *config.Config, password string, logger *log.Logger) (*rest.Client, *codec.Registry) {
	reg := codec.New(cfg.Location())
	conn := rest.NewHTTPConnector(cfg.APIURL(), cfg.TimeoutDuration())
	var auth rest.Authenticator
	if cfg.Repository.Username != "" {
		auth = &rest.TokenAuthenticator{
			Conn:        conn,
			Codec:       reg,
			Credentials: rest.Credentials{Username: cfg.Repository.Username, Password: password},
		}
	}
	client := rest.New(conn, auth, reg)
	client.PageSize = cfg.Repository.PageSize
	client.Logger = logger
	return client, reg
}

// Open loads the workspace config, opens and migrates the task cache and
// wires the connector to it.
func Open(ctx context.Context, opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.Workspace)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	client, reg := NewClient(cfg, opts.Password, opts.Logger)
	conn := connector.New(cfg.Repository.URL, client)
	conn.Codec = reg
	conn.Logger = opts.Logger

	sqlDB, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := migrate.Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return &Context{
		Config:    cfg,
		Codec:     reg,
		Client:    client,
		Connector: conn,
		DB:        sqlDB,
		Engine:    engine.New(sqlDB, cfg.Repository.URL, conn),
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

// LoadUsers reads the server configuration so that comment and attachment
// authors resolve to full users.
func (c *Context) LoadUsers(ctx context.Context) error {
	srv, err := c.Client.LoadServer(ctx, c.Config.Repository.URL)
	if err != nil {
		return err
	}
	c.Connector.Users = srv
	return nil
}

// SavedQuery resolves a query declared in tuleap.yml.
func (c *Context) SavedQuery(name string) (connector.Query, error) {
	q, ok := c.Config.Queries[name]
	if !ok {
		return connector.Query{}, fmt.Errorf("query %s not found in tuleap.yml", name)
	}
	return QueryFromConfig(name, q), nil
}

// QueryFromConfig turns a saved query into connector parameters.
func QueryFromConfig(name string, q config.Query) connector.Query {
	title := q.Title
	if title == "" {
		title = name
	}
	attrs := map[string]string{connector.ParamKind: q.Kind}
	switch q.Kind {
	case connector.KindReport:
		attrs[connector.ParamReportID] = strconv.Itoa(q.ReportID)
	case connector.KindCustom:
		attrs[connector.ParamTrackerID] = strconv.Itoa(q.TrackerID)
	case connector.KindTopLevelPlanning:
		attrs[connector.ParamProjectID] = strconv.Itoa(q.ProjectID)
	}
	return connector.Query{Title: title, Attributes: attrs, Criteria: q.Criteria}
}
