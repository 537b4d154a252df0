package main

import (
	"context"
	"fmt"

	"github.com/aiser/queryengine/executor"
	"github.com/aiser/queryengine/schema"
	"github.com/aiser/queryengine/types"
)

// DataSourceConfig describes one connectable, queryable backend: how to
// reach it (kind/dialect/dsn) and the schema to serve for it until a live
// introspection collaborator is wired in.
type DataSourceConfig struct {
	ID      string               `yaml:"id"`
	Kind    types.DataSourceKind `yaml:"kind"`
	Dialect string               `yaml:"dialect"`
	DSN     string               `yaml:"dsn"`
	Schema  schema.Schema        `yaml:"schema"`
}

// openBackend opens the configured SQL backend for one data source.
func openBackend(ds DataSourceConfig) (executor.Backend, error) {
	switch ds.Kind {
	case types.KindSQLite, types.KindDuckDB, types.KindFile:
		return executor.NewSQLiteBackend(ds.DSN)
	case types.KindPostgres, types.KindRedshift:
		return executor.NewPostgresBackend(ds.DSN)
	default:
		return nil, fmt.Errorf("data source %q: no backend driver registered for kind %q in this build", ds.ID, ds.Kind)
	}
}

// ConfigSchemaFetcher implements schema.Fetcher by serving the schema
// declared alongside each data source's connection config. It stands in for
// the original service's live catalog/information_schema introspection,
// which a production deployment should replace with its own Fetcher once a
// metadata collaborator is available.
type ConfigSchemaFetcher struct {
	schemas map[string]*schema.Schema
}

// NewConfigSchemaFetcher indexes every configured data source's declared schema.
func NewConfigSchemaFetcher(dataSources []DataSourceConfig) *ConfigSchemaFetcher {
	f := &ConfigSchemaFetcher{schemas: make(map[string]*schema.Schema, len(dataSources))}
	for _, ds := range dataSources {
		s := ds.Schema
		s.DataSourceID = ds.ID
		f.schemas[ds.ID] = &s
	}
	return f
}

func (f *ConfigSchemaFetcher) FetchSchema(ctx context.Context, dataSourceID string) (*schema.Schema, error) {
	s, ok := f.schemas[dataSourceID]
	if !ok {
		return nil, fmt.Errorf("no schema configured for data source %q", dataSourceID)
	}
	return s, nil
}

// dialectOf returns the configured dialect for a registered data source, or
// "postgres" when unset, mirroring types.WorkflowState's Dialect doc comment.
func dialectOf(dataSources []DataSourceConfig, id string) string {
	for _, ds := range dataSources {
		if ds.ID == id && ds.Dialect != "" {
			return ds.Dialect
		}
	}
	return "postgres"
}
